package restack

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
	"github.com/n2code/heatwave/internal/fsutil"
	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/library"
	"github.com/n2code/heatwave/internal/mdoc"
)

const succeedingTool = `#!/bin/sh
cp "$2" "$4"
echo "stacked $(head -n 1 "$2") sections"
`

const failingTool = `#!/bin/sh
echo "cannot read input" >&2
exit 3
`

type fixture struct {
	config layout.Config
	lib    library.Api
	mdoc   string
	stack  string
}

func write(t *testing.T, path string, content string, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
}

func read(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func blockText(index int, movie string, angle float64) string {
	return fmt.Sprintf("[ZValue = %d]\nTiltAngle = %.1f\nSubFramePath = X:\\frames\\%s\n\n", index, angle, movie)
}

const mdocHeader = "PixelSpacing = 1.5\nImageFile = ts_01.mrc\n\n"

// newFixture creates a tilt series of five micrographs with an existing stack and the given stacking tool.
func newFixture(t *testing.T, tool string) *fixture {
	dir := t.TempDir()
	config := layout.DefaultConfig()
	config.InDir = filepath.Join(dir, "SNARTomo")
	config.ImodBin = filepath.Join(dir, "imod", "bin")
	if tool != "" {
		write(t, filepath.Join(config.ImodBin, ToolName), tool, 0755)
	}

	f := &fixture{config: config, lib: library.MakeRuntimeLibrary()}
	f.mdoc = filepath.Join(config.SeriesDir("ts_01"), "ts_01.mrc.mdoc")
	f.stack = filepath.Join(config.SeriesDir("ts_01"), "ts_01_newstack.mrc")

	content := mdocHeader
	tilts := make(map[string]*document.Micrograph)
	for i := 0; i < 5; i++ {
		movie := fmt.Sprintf("ts_01_%03d.eer", i+1)
		content += blockText(i, movie, float64(i*3))
		artifacts := config.Micrograph(f.mdoc, movie, i)
		write(t, artifacts.McorrMic, "mic", 0644)
		tilts[fmt.Sprintf("tilt_no_%d", i+1)] = &document.Micrograph{
			ZValue:       i,
			TiltAngle:    fmt.Sprintf("%.1f", float64(i*3)),
			SubFramePath: `X:\frames\` + movie,
			McorrMic:     artifacts.McorrMic,
		}
	}
	write(t, f.mdoc, content, 0644)
	write(t, f.stack, "old stack", 0644)
	record := document.NewRecord(document.Header{MdocName: f.mdoc, NumTilts: "5"}, tilts)
	require.NoError(t, f.lib.InsertRecord(library.VirtualTarget, f.mdoc, record))
	return f
}

func (f *fixture) engine() *Engine {
	return NewEngine(f.config, f.lib, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (f *fixture) discard(t *testing.T, tiltKeys ...string) {
	for _, tiltKey := range tiltKeys {
		_, err := f.lib.SetMicrographSelection(f.mdoc, tiltKey, false)
		require.NoError(t, err)
	}
}

func TestRestackDropsDiscardedMicrographs(t *testing.T) {
	f := newFixture(t, succeedingTool)
	original := read(t, f.mdoc)
	f.discard(t, "tilt_no_2", "tilt_no_4")

	result, err := f.engine().Restack(context.Background(), f.mdoc)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Kept)
	assert.Equal(t, 2, result.Dropped)

	rewritten, err := mdoc.ReadFile(f.mdoc)
	require.NoError(t, err)
	require.Len(t, rewritten.Blocks, 3)
	for i, block := range rewritten.Blocks {
		index, err := block.Index()
		require.NoError(t, err)
		assert.Equal(t, i, index)
	}
	assert.Equal(t, mdocHeader+blockText(0, "ts_01_001.eer", 0)+blockText(1, "ts_01_003.eer", 6)+blockText(2, "ts_01_005.eer", 12), read(t, f.mdoc))
	assert.Equal(t, f.mdoc+"_0", result.MdocBackup)
	assert.Equal(t, original, read(t, result.MdocBackup))

	list := strings.Split(strings.TrimSpace(read(t, result.FileList)), "\n")
	require.Len(t, list, 1+2*3)
	assert.Equal(t, "3", list[0])
	record, err := f.lib.GetRecord(f.mdoc)
	require.NoError(t, err)
	assert.Equal(t, []string{record.Tilts["tilt_no_1"].McorrMic, "/", record.Tilts["tilt_no_3"].McorrMic, "/", record.Tilts["tilt_no_5"].McorrMic, "/"}, list[1:])

	assert.Equal(t, f.stack, result.Stack)
	assert.Equal(t, read(t, result.FileList), read(t, f.stack), "fake tool copies its input")
	assert.Equal(t, "old stack", read(t, f.stack+".BAK"))
	assert.False(t, fsutil.Exists(temporaryStack(f.stack)))
	assert.Equal(t, "stacked 3 sections\n", read(t, result.RunLog))
	assert.Equal(t, filepath.Join(filepath.Dir(f.mdoc), "ts_01_restack.out"), result.RunLog)

	assert.Equal(t, "3", record.Header.NumTilts)
	assert.Equal(t, 0, record.Tilts["tilt_no_1"].ZValue)
	assert.Equal(t, 1, record.Tilts["tilt_no_3"].ZValue)
	assert.Equal(t, 2, record.Tilts["tilt_no_5"].ZValue)
	assert.Equal(t, document.SomeSelected, record.Header.Selected)
}

func TestRepeatedRestackKeepsSingleStackBackup(t *testing.T) {
	f := newFixture(t, succeedingTool)
	f.discard(t, "tilt_no_1")
	engine := f.engine()

	_, err := engine.Restack(context.Background(), f.mdoc)
	require.NoError(t, err)
	firstStack := read(t, f.stack)
	result, err := engine.Restack(context.Background(), f.mdoc)
	require.NoError(t, err)

	assert.Equal(t, firstStack, read(t, f.stack+".BAK"), "previous backup is overwritten")
	assert.Equal(t, f.mdoc+"_1", result.MdocBackup)
	assert.True(t, fsutil.Exists(result.FileList+"_0"))
	assert.True(t, fsutil.Exists(result.RunLog+"_0"))
}

func TestFailingToolChangesNothing(t *testing.T) {
	f := newFixture(t, failingTool)
	original := read(t, f.mdoc)
	f.discard(t, "tilt_no_2")

	_, err := f.engine().Restack(context.Background(), f.mdoc)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ExternalToolFailed))
	assert.Contains(t, err.Error(), "cannot read input")

	assert.Equal(t, original, read(t, f.mdoc))
	assert.Equal(t, "old stack", read(t, f.stack))
	assert.False(t, fsutil.Exists(f.stack+".BAK"))
	assert.False(t, fsutil.Exists(f.mdoc+"_0"))
	assert.False(t, fsutil.Exists(temporaryStack(f.stack)))
	record, err := f.lib.GetRecord(f.mdoc)
	require.NoError(t, err)
	assert.Equal(t, "5", record.Header.NumTilts)
}

func TestMissingToolChangesNothing(t *testing.T) {
	f := newFixture(t, "")
	f.config.ImodBin = ""
	empty := t.TempDir()
	t.Setenv("IMOD_BIN", empty)
	t.Setenv("PATH", empty)
	original := read(t, f.mdoc)
	f.discard(t, "tilt_no_2")

	_, err := f.engine().Restack(context.Background(), f.mdoc)
	assert.True(t, fault.Is(err, fault.ExternalToolMissing))
	assert.Equal(t, original, read(t, f.mdoc))
	assert.False(t, fsutil.Exists(f.config.FileListPath(f.mdoc)))

	f.config.ImodBin = empty
	_, err = f.engine().Restack(context.Background(), f.mdoc)
	assert.True(t, fault.Is(err, fault.ExternalToolMissing), "configured directory without the tool")
}

func TestToolFromImodBinVariable(t *testing.T) {
	f := newFixture(t, succeedingTool)
	t.Setenv("IMOD_BIN", f.config.ImodBin)
	f.config.ImodBin = ""

	tool, err := f.engine().ResolveTool()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.Getenv("IMOD_BIN"), ToolName), tool)
}

func TestPreviewShowsDroppedBlocks(t *testing.T) {
	f := newFixture(t, succeedingTool)
	original := read(t, f.mdoc)
	f.discard(t, "tilt_no_2")

	diff, err := f.engine().Preview(f.mdoc)
	require.NoError(t, err)
	assert.Contains(t, diff, "-SubFramePath = X:\\frames\\ts_01_002.eer\n")
	assert.Contains(t, diff, "-[ZValue = 4]\n")
	assert.Contains(t, diff, "+++ "+f.mdoc+" (restacked)\n")
	assert.Equal(t, original, read(t, f.mdoc), "preview must not write")
}

func TestRestackRefusals(t *testing.T) {
	t.Run("complete selection", func(t *testing.T) {
		f := newFixture(t, succeedingTool)
		_, err := f.engine().Restack(context.Background(), f.mdoc)
		assert.True(t, fault.Is(err, fault.Consistency))
	})
	t.Run("ambiguous stack", func(t *testing.T) {
		f := newFixture(t, succeedingTool)
		f.discard(t, "tilt_no_2")
		write(t, filepath.Join(filepath.Dir(f.mdoc), "other_newstack.st"), "", 0644)
		_, err := f.engine().Restack(context.Background(), f.mdoc)
		assert.True(t, fault.Is(err, fault.Consistency))
		assert.Equal(t, "old stack", read(t, f.stack))
	})
	t.Run("unknown mdoc", func(t *testing.T) {
		f := newFixture(t, succeedingTool)
		_, err := f.engine().Restack(context.Background(), filepath.Join(filepath.Dir(f.mdoc), "ts_99.mrc.mdoc"))
		assert.True(t, fault.Is(err, fault.Consistency))
	})
}

func TestRestackAllCollectsCandidates(t *testing.T) {
	f := newFixture(t, succeedingTool)
	f.discard(t, "tilt_no_3")
	engine := f.engine()
	require.Len(t, engine.Candidates(), 1)

	results, err := engine.RestackAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 4, results[0].Kept)
}
