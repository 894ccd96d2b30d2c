package restack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
	"github.com/n2code/heatwave/internal/fsutil"
	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/library"
	"github.com/n2code/heatwave/internal/mdoc"
)

// ToolName is the stacking executable looked up in the IMOD bin directory or the search path.
const ToolName = "newstack"

const (
	imodBinVariable = "IMOD_BIN"
	backupSuffix    = ".BAK"
	previewContext  = 2
)

// Engine rewrites partially discarded tilt series: metadata file, stacking tool input and image stack.
type Engine struct {
	config layout.Config
	lib    library.Api
	logger *slog.Logger
}

// Result tells which files one restack produced.
type Result struct {
	MdocKey    string
	Kept       int
	Dropped    int
	Stack      string
	StackBak   string //empty if there was no stack before
	MdocBackup string
	FileList   string
	RunLog     string
}

type rewrite struct {
	original  mdoc.File
	rewritten mdoc.File
	survivors []string //motion-corrected micrographs in block order
	dropped   int
}

func NewEngine(config layout.Config, lib library.Api, logger *slog.Logger) *Engine {
	return &Engine{config: config, lib: lib, logger: logger}
}

// Candidates lists the tilt series with some but not all micrographs discarded.
func (e *Engine) Candidates() (candidates []library.Location) {
	e.lib.VisitRecords(func(location library.Location, record *document.Record) {
		if record.Header.Selected == document.SomeSelected {
			candidates = append(candidates, location)
		}
	})
	return
}

// RestackAll restacks every candidate, failures are collected and do not stop the others.
func (e *Engine) RestackAll(ctx context.Context) (results []Result, err error) {
	var problems []error
	for _, location := range e.Candidates() {
		result, restackErr := e.Restack(ctx, location.MdocKey)
		if restackErr != nil {
			problems = append(problems, restackErr)
			if fault.Is(restackErr, fault.ExternalToolMissing) {
				break //same outcome for all others
			}
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(problems...)
}

// Restack rebuilds the tilt series from its selected micrographs.
// The existing stack and metadata file are only replaced once the stacking tool succeeded.
func (e *Engine) Restack(ctx context.Context, mdocKey string) (result Result, err error) {
	tool, err := e.ResolveTool()
	if err != nil {
		return
	}
	record, planned, err := e.prepare(mdocKey)
	if err != nil {
		return
	}
	stack, err := e.findStack(mdocKey)
	if err != nil {
		return
	}

	result = Result{MdocKey: mdocKey, Kept: len(planned.survivors), Dropped: planned.dropped, Stack: stack}
	result.FileList = e.config.FileListPath(mdocKey)
	if _, err = fsutil.WriteLines(result.FileList, fileList(planned.survivors)); err != nil {
		return
	}

	output, err := e.runTool(ctx, tool, result.FileList, stack)
	if err != nil {
		return
	}

	if fsutil.Exists(stack) {
		result.StackBak = stack + backupSuffix
		if err = os.Rename(stack, result.StackBak); err != nil { //a previous backup is overwritten
			return
		}
		e.logger.Info("kept previous stack", "backup", result.StackBak)
	}
	if err = os.Rename(temporaryStack(stack), stack); err != nil {
		return
	}
	if result.MdocBackup, err = fsutil.WriteLines(mdocKey, planned.rewritten.Lines()); err != nil {
		return
	}
	result.RunLog = e.config.RunLogPath(mdocKey)
	if _, err = fsutil.WriteFile(result.RunLog, output); err != nil {
		return
	}

	applyRenumbering(record, planned)
	e.logger.Info("restacked tilt series", "mdoc", mdocKey, "kept", result.Kept, "dropped", result.Dropped, "stack", stack)
	return result, nil
}

// Preview shows the metadata file rewrite as a unified diff without changing anything.
func (e *Engine) Preview(mdocKey string) (string, error) {
	_, planned, err := e.prepare(mdocKey)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        withNewlines(planned.original.Lines()),
		B:        withNewlines(planned.rewritten.Lines()),
		FromFile: mdocKey,
		ToFile:   mdocKey + " (restacked)",
		Context:  previewContext,
	})
}

// ResolveTool finds the stacking tool: configured IMOD bin directory first, then $IMOD_BIN, then the search path.
func (e *Engine) ResolveTool() (string, error) {
	if e.config.ImodBin != "" {
		configured := filepath.Join(e.config.ImodBin, ToolName)
		if !isExecutable(configured) {
			return "", fault.New(fault.ExternalToolMissing, configured, "configured IMOD bin directory holds no executable "+ToolName, nil)
		}
		return configured, nil
	}
	if dir, set := os.LookupEnv(imodBinVariable); set {
		candidate := filepath.Join(dir, ToolName)
		if isExecutable(candidate) {
			return candidate, nil
		}
		e.logger.Debug("stacking tool not in IMOD bin directory", "dir", dir)
	}
	path, err := exec.LookPath(ToolName)
	if err != nil {
		hint := "IMOD is neither configured nor on the search path"
		if _, set := os.LookupEnv(imodBinVariable); !set {
			hint += ", " + imodBinVariable + " is not set either"
		}
		return "", fault.New(fault.ExternalToolMissing, ToolName, hint, err)
	}
	return path, nil
}

func (e *Engine) prepare(mdocKey string) (*document.Record, rewrite, error) {
	record, err := e.lib.GetRecord(mdocKey)
	if err != nil {
		return nil, rewrite{}, err
	}
	if record.Header.Selected != document.SomeSelected {
		return nil, rewrite{}, fault.Consistencyf(mdocKey, "restack needs a partial selection, found %s selected", record.Header.Selected)
	}
	file, err := mdoc.ReadFile(mdocKey)
	if err != nil {
		return nil, rewrite{}, err
	}

	kept := make(map[string]string) //micrograph name -> path
	discarded := make(map[string]bool)
	for _, tiltKey := range record.TiltKeys() {
		mic := record.Tilts[tiltKey]
		name := e.config.MicrographFileName(mic.MovieBase())
		if !mic.Selected {
			discarded[name] = true
			continue
		}
		if mic.McorrMic == "" || !fsutil.Exists(mic.McorrMic) {
			return nil, rewrite{}, fault.Consistencyf(mdocKey, "motion-corrected micrograph of %s not found", mic.MovieBase())
		}
		kept[name] = mic.McorrMic
	}

	p := rewrite{original: file, rewritten: mdoc.File{Header: file.Header}}
	for _, block := range file.Blocks {
		framePath, err := block.SubFramePath()
		if err != nil {
			return nil, rewrite{}, fault.New(fault.Parse, mdocKey, "block without raw-frame path", err)
		}
		name := e.config.MicrographFileName(mdoc.FrameBase(framePath))
		if path, isKept := kept[name]; isKept {
			p.rewritten.Blocks = append(p.rewritten.Blocks, block.WithIndex(len(p.rewritten.Blocks)))
			p.survivors = append(p.survivors, path)
			continue
		}
		if !discarded[name] {
			return nil, rewrite{}, fault.Consistencyf(mdocKey, "block for %s is not on record", mdoc.FrameBase(framePath))
		}
		p.dropped++
	}
	if len(p.survivors) != len(kept) {
		return nil, rewrite{}, fault.Consistencyf(mdocKey, "%d selected micrographs lack a block", len(kept)-len(p.survivors))
	}
	return record, p, nil
}

// findStack yields the single existing image stack or the default name for a new one.
func (e *Engine) findStack(mdocKey string) (string, error) {
	var stacks []string
	for _, pattern := range e.config.StackPatterns(mdocKey) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", err
		}
		stacks = append(stacks, matches...)
	}
	switch len(stacks) {
	case 0:
		return e.config.DefaultStackPath(mdocKey), nil
	case 1:
		return stacks[0], nil
	}
	return "", fault.Consistencyf(mdocKey, "more than one image stack: %s", strings.Join(stacks, ", "))
}

func (e *Engine) runTool(ctx context.Context, tool string, list string, stack string) ([]byte, error) {
	output := temporaryStack(stack)
	args := []string{"-filei", list, "-ou", output}
	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("running stacking tool", "tool", tool, "args", args)
	err := cmd.Run()
	if err != nil {
		os.Remove(output)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fault.New(fault.ExternalToolFailed, tool,
				fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String())), err)
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fault.New(fault.ExternalToolMissing, tool, "stacking tool not executable", err)
		}
		return nil, fault.New(fault.ExternalToolFailed, tool, "stacking tool did not run", err)
	}
	if !fsutil.Exists(output) {
		return nil, fault.New(fault.ExternalToolFailed, tool, "stacking tool wrote no stack", nil)
	}
	return stdout.Bytes(), nil
}

func applyRenumbering(record *document.Record, p rewrite) {
	zValue := 0
	for _, tiltKey := range record.TiltKeys() {
		if mic := record.Tilts[tiltKey]; mic.Selected {
			mic.ZValue = zValue
			zValue++
		}
	}
	record.Header.NumTilts = strconv.Itoa(len(p.survivors))
}

// fileList renders the stacking tool input: the count, then each path followed by a separator line.
func fileList(paths []string) []string {
	lines := []string{strconv.Itoa(len(paths))}
	for _, path := range paths {
		lines = append(lines, path, "/")
	}
	return lines
}

func temporaryStack(stack string) string {
	ext := filepath.Ext(stack)
	return strings.TrimSuffix(stack, ext) + "_heatwave_tmp" + ext
}

func withNewlines(lines []string) []string {
	terminated := make([]string, len(lines))
	for i, line := range lines {
		terminated[i] = line + "\n"
	}
	return terminated
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0111 != 0
}
