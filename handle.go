package heatwave

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/library"
	"github.com/n2code/heatwave/internal/output"
)

type VerbosityLevel int

// CreateConfig holds a set of common configuration switches that concern all calls to the heatwave API.
// The zero value is a sensible default.
type CreateConfig struct {
	Verbosity VerbosityLevel
	Layout    layout.Config //zero value means layout.DefaultConfig()
	ForceNew  bool          //start from scratch, an existing document is copied to <document>.BAK first
	Fancy     bool          //terminal colors
	Terminal  io.Writer     //requested output, defaults to stdout
	Diagnosis io.Writer     //errors and log records, defaults to stderr
}

const (
	DefaultVerbosity VerbosityLevel = iota //normal level of information, all noteworthy facts without too much noise
	VerboseMode                            //exhaustive information about what is happening, repeating context
	QuietMode                              //only output errors and information that was explicitly requested (-> Print* functions)
)

const backupSuffix = ".BAK"

// Open loads the document named by the layout configuration or starts a new one if none exists yet.
// A loaded document must follow the naming conventions of tilt-series directories, their shared layout replaces the configured one.
func Open(config CreateConfig) (Heatwave, error) {
	handle := makeHeatwave(config)
	if err := handle.loadDocument(config.ForceNew); err != nil {
		return nil, fmt.Errorf("document load error: %w", err)
	}
	return handle, nil
}

type heatwave struct {
	mutex   sync.Mutex
	lib     library.Api
	layout  layout.Config //paths absolute
	docPath string        //absolute, system-native path
	loaded  bool          //document existed and was read
	printer output.Printer
	logger  *slog.Logger
}

func makeHeatwave(config CreateConfig) (instance *heatwave) {
	terminal, diagnosis := config.Terminal, config.Diagnosis
	if terminal == nil {
		terminal = os.Stdout
	}
	if diagnosis == nil {
		diagnosis = os.Stderr
	}

	classes := []output.Class{output.Required, output.Error}
	level := slog.LevelWarn
	switch config.Verbosity {
	case VerboseMode:
		classes = append(classes, output.Normal, output.Verbose)
		level = slog.LevelDebug
	case DefaultVerbosity:
		classes = append(classes, output.Normal)
		level = slog.LevelInfo
	}

	settings := config.Layout
	if settings.Document == "" {
		settings = layout.DefaultConfig()
	}
	settings.Document = mustAbsFilepath(settings.Document)
	if settings.InDir != "" {
		settings.InDir = mustAbsFilepath(settings.InDir)
	}

	instance = &heatwave{
		lib:     library.MakeRuntimeLibrary(),
		layout:  settings,
		docPath: settings.Document,
		printer: output.NewPrinter(classes, config.Fancy).Redirected(terminal, diagnosis),
		logger:  slog.New(slog.NewTextHandler(diagnosis, &slog.HandlerOptions{Level: level})),
	}
	return
}

func (h *heatwave) loadDocument(forceNew bool) error {
	if _, err := os.Stat(h.docPath); errors.Is(err, os.ErrNotExist) {
		h.logger.Info("building new document", "path", h.docPath)
		return nil
	}
	if forceNew {
		backup := h.docPath + backupSuffix
		h.logger.Info("backing up document before starting over", "path", h.docPath, "backup", backup)
		content, err := os.ReadFile(h.docPath)
		if err != nil {
			return err
		}
		return os.WriteFile(backup, content, 0644)
	}

	if err := h.lib.LoadFromLocalFile(h.docPath); err != nil {
		return err
	}
	tsDirPattern, err := h.lib.Validate()
	if err != nil {
		return err
	}
	if tsDirPattern != "" {
		if rel, err := filepath.Rel(h.layout.InDir, tsDirPattern); err == nil && isChildOf(tsDirPattern, h.layout.InDir) {
			tsDirPattern = filepath.Join(layout.InDirPlaceholder, rel)
		}
		h.layout.TsDir = tsDirPattern
	}
	h.loaded = true
	h.logger.Debug("document loaded", "path", h.docPath, "summary", h.lib.Summary().String())
	return nil
}

func (h *heatwave) DocumentPath() string {
	return h.docPath
}

func (h *heatwave) PersistChanges() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.persist()
}

func (h *heatwave) persist() error {
	if err := h.lib.SaveToLocalFile(h.docPath); err != nil {
		return err
	}
	h.loaded = true
	h.printer.Out(output.Verbose, "document written to %s\n", h.displayablePath(h.docPath))
	return nil
}
