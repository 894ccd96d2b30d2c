package heatwave

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/library"
)

type session struct {
	dir      string
	config   layout.Config
	terminal *bytes.Buffer
}

func write(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// newSession works inside a fresh directory holding the input directory SNARTomo.
func newSession(t *testing.T) *session {
	dir := t.TempDir()
	testChdir(t, dir)
	config := layout.DefaultConfig()
	config.Document = filepath.Join(dir, "heatwave.json")
	config.InDir = filepath.Join(dir, "SNARTomo")
	config.MovieDir = layout.InDirPlaceholder + "/frames"
	config.FrameFile = filepath.Join(dir, "motioncor-frame.txt")
	write(t, config.FrameFile, "400 20 0.0075\n") //3 e/A² per image
	return &session{dir: dir, config: config, terminal: &bytes.Buffer{}}
}

func movieName(stem string, i int, angle string) string {
	return fmt.Sprintf("%s_%03d_%s.eer", stem, i+1, angle)
}

func seriesContent(stem string, angles ...string) string {
	var content strings.Builder
	content.WriteString("PixelSpacing = 1.5\nImageFile = " + stem + ".mrc\nVoltage = 300\n\n")
	for i, angle := range angles {
		fmt.Fprintf(&content, "[ZValue = %d]\nTiltAngle = %s\nExposureTime = 1.5\nSubFramePath = X:\\frames\\%s\n\n", i, angle, movieName(stem, i, angle))
	}
	return content.String()
}

// addSeries writes a tilt series with CTF summary and original metadata file, only the motion-corrected micrographs exist.
func (s *session) addSeries(t *testing.T, stem string, angles ...string) string {
	mdocPath := filepath.Join(s.config.SeriesDir(stem), layout.MdocFileName(stem))
	content := seriesContent(stem, angles...)
	var summary strings.Builder
	for i, angle := range angles {
		movie := movieName(stem, i, angle)
		fmt.Fprintf(&summary, "%s 1 %d 22000 45.0 0.0 0.08 7.5\n", s.config.MicrographFileName(movie), 20000+1000*i)
		write(t, filepath.Join(s.config.Resolve(s.config.MicDir), s.config.MicrographFileName(movie)), "mic")
	}
	write(t, mdocPath, content)
	write(t, s.config.OrigMdocPath(mdocPath), content)
	write(t, s.config.CtfSummaryPath(mdocPath), summary.String())
	return mdocPath
}

func (s *session) open(t *testing.T, forceNew bool) *heatwave {
	t.Helper()
	api, err := Open(CreateConfig{Verbosity: QuietMode, Layout: s.config, ForceNew: forceNew, Terminal: s.terminal, Diagnosis: io.Discard})
	require.NoError(t, err)
	return api.(*heatwave)
}

func relative(t *testing.T, path string) string {
	rel, err := filepath.Rel(mustGetwd(), path)
	require.NoError(t, err)
	return rel
}

func TestIngestMdocsWithoutTargets(t *testing.T) {
	s := newSession(t)
	first := s.addSeries(t, "ts_01", "0.0", "3.0", "-3.0")
	second := s.addSeries(t, "ts_02", "0.0", "-3.0")

	h := s.open(t, false)
	added, err := h.IngestMdocs([]string{relative(t, first), relative(t, second)})
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, added)
	assert.Equal(t, []string{library.VirtualTarget}, h.lib.Targets())
	assert.Equal(t, s.config.InDir, h.layout.InDir)

	record, err := h.lib.GetRecord(first)
	require.NoError(t, err)
	assert.Equal(t, "3", record.Header.NumTilts)
	assert.Equal(t, "300", record.Header.General["Voltage"])
	assert.Equal(t, document.AllSelected, record.Header.Selected)
	assert.Equal(t, s.config.CtfSummaryPath(first), record.Header.CtfSummary)

	mic := record.Tilts["tilt_no_2"]
	assert.True(t, mic.Selected)
	assert.Equal(t, movieName("ts_01", 1, "3.0"), mic.MovieBase())
	assert.NotEmpty(t, mic.McorrMic)
	assert.Empty(t, mic.TiffFile, "missing artifact stays empty")
	require.NotNil(t, mic.CtfFind4)
	assert.Equal(t, -21500.0, *mic.CtfFind4)
	assert.Equal(t, 7.5, *mic.MaxRes)
	assert.Equal(t, 3.0, mic.CumExposure)
	assert.InDelta(t, 6.0, mic.CumDose, 1e-9)
	assert.Empty(t, mic.MicThumbnail, "thumbnails are not generated here")

	require.NoError(t, h.PersistChanges())
	reopened := s.open(t, false)
	assert.Equal(t, library.TakeSnapshot(h.lib), reopened.Snapshot())
	assert.Equal(t, filepath.Join(s.config.InDir, "5-Tomo", "ts_07"), reopened.layout.SeriesDir("ts_07"))

	selections, err := reopened.lib.Query("$..MdocSelected")
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{float64(2), float64(2)}, selections)
}

func TestIngestInputRules(t *testing.T) {
	s := newSession(t)
	mdocPath := s.addSeries(t, "ts_01", "0.0")
	h := s.open(t, false)

	_, err := h.Ingest([]string{"targets.txt"}, []string{mdocPath})
	assert.True(t, IsKind(err, ParseError), "both kinds of input")
	_, err = h.Ingest(nil, nil)
	assert.True(t, IsKind(err, ParseError), "nothing to build a new document from")

	_, err = h.IngestMdocs([]string{mdocPath, filepath.Join(s.dir, "..", "elsewhere", "ts_02.mrc.mdoc")})
	assert.True(t, IsKind(err, ParseError), "top-level directories differ")

	added, err := h.Ingest(nil, []string{mdocPath})
	require.NoError(t, err)
	assert.Len(t, added, 1)
	added, err = h.Ingest(nil, []string{mdocPath})
	require.NoError(t, err)
	assert.Empty(t, added, "known file name is skipped")
	require.NoError(t, h.PersistChanges())

	added, err = s.open(t, false).Ingest(nil, nil)
	assert.NoError(t, err, "loaded document needs no input")
	assert.Empty(t, added)
}

func TestIngestTargets(t *testing.T) {
	s := newSession(t)
	first := s.addSeries(t, "ts_01", "0.0", "3.0")
	second := s.addSeries(t, "ts_02", "0.0")
	targets := filepath.Join(s.config.InDir, "targets.txt")
	write(t, targets, "_tgt = 001\ntsfile = ts_01.mrc\n\n_tgt = 002\ntsfile = ts_02.mrc\n_tgt = 003\ntsfile = ts_09.mrc\n")
	plot := filepath.Join(s.config.InDir, "Images", "ctfbyts_targets.png")
	write(t, plot, "png")
	write(t, filepath.Join(s.config.InDir, "Images", "ctfbyts_other.png"), "png")

	h := s.open(t, false)
	added, err := h.IngestTargets([]string{relative(t, targets)})
	require.NoError(t, err, "missing metadata file is only a warning")
	assert.Equal(t, []string{first, second}, added)
	assert.Equal(t, []string{targets}, h.lib.Targets())
	aux, exists := h.lib.AuxiliaryPath(targets)
	assert.True(t, exists)
	assert.Equal(t, plot, aux)

	empty := filepath.Join(s.config.InDir, "empty.txt")
	write(t, empty, "tsfile = ts_01.mrc\n")
	added, err = h.IngestTargets([]string{empty})
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, []string{targets}, h.lib.Targets(), "target without new tilt series is dropped")
}

func TestMissingSubFramePath(t *testing.T) {
	s := newSession(t)
	mdocPath := filepath.Join(s.config.SeriesDir("ts_01"), "ts_01.mrc.mdoc")
	write(t, mdocPath, "PixelSpacing = 1.5\n\n[ZValue = 0]\nTiltAngle = 0.0\n")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{mdocPath})
	assert.True(t, IsKind(err, ParseError))
	assert.Empty(t, h.lib.Targets())
}

func TestMetadataFileWithoutBlocks(t *testing.T) {
	s := newSession(t)
	mdocPath := filepath.Join(s.config.SeriesDir("ts_01"), "ts_01.mrc.mdoc")
	write(t, mdocPath, "PixelSpacing = 1.5\nImageFile = ts_01.mrc\n\n")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{mdocPath})
	assert.True(t, IsKind(err, ParseError))
	assert.Empty(t, h.lib.Targets())
	candidates, err := h.IncinerationCandidates()
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSelectionRoundTrip(t *testing.T) {
	s := newSession(t)
	first := s.addSeries(t, "ts_01", "0.0", "3.0", "-3.0")
	second := s.addSeries(t, "ts_02", "0.0")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{first, second})
	require.NoError(t, err)

	require.NoError(t, h.SelectMicrograph("ts_01.mrc.mdoc", movieName("ts_01", 2, "-3.0"), false))
	require.NoError(t, h.SelectMicrograph(first, "tilt_no_1", false))
	require.NoError(t, h.SelectMdoc("ts_02.mrc.mdoc", false))
	require.NoError(t, h.SetNote("ts_01.mrc.mdoc", "thick ice"))
	assert.True(t, IsKind(h.SelectMdoc("ts_03.mrc.mdoc", true), ConsistencyError))
	assert.True(t, IsKind(h.SelectMicrograph(first, "nope.eer", true), ConsistencyError))
	assert.True(t, IsKind(h.SelectMdoc(filepath.Join(s.dir, "ts_01.mrc.mdoc"), true), ConsistencyError), "same name, other path")
	require.NoError(t, h.PersistChanges())

	reopened := s.open(t, false)
	record, err := reopened.lib.GetRecord(first)
	require.NoError(t, err)
	assert.Equal(t, document.SomeSelected, record.Header.Selected)
	assert.Equal(t, "thick ice", record.Header.TextNote)
	assert.False(t, record.Tilts["tilt_no_1"].Selected)
	assert.True(t, record.Tilts["tilt_no_2"].Selected)
	assert.False(t, record.Tilts["tilt_no_3"].Selected)
	assert.Equal(t, []string{first}, reopened.RestackCandidates())
	candidates, err := reopened.IncinerationCandidates()
	require.NoError(t, err)
	assert.Equal(t, []string{second}, candidates)

	snapshot := reopened.Snapshot()
	snapshot[first][movieName("ts_01", 0, "0.0")] = true
	changed, err := reopened.Reconcile(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
}

func TestLoadRejectsForeignLayout(t *testing.T) {
	s := newSession(t)
	misnamed := filepath.Join(s.config.SeriesDir("ts_01"), "other.mrc.mdoc")
	write(t, misnamed, "PixelSpacing = 1.5\n\n[ZValue = 0]\nTiltAngle = 0.0\nSubFramePath = X:\\frames\\a.eer\n")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{misnamed})
	require.NoError(t, err)
	require.NoError(t, h.PersistChanges())

	_, err = Open(CreateConfig{Verbosity: QuietMode, Layout: s.config, Terminal: io.Discard, Diagnosis: io.Discard})
	assert.True(t, IsKind(err, ParseError))
}

func TestForceNewKeepsBackup(t *testing.T) {
	s := newSession(t)
	mdocPath := s.addSeries(t, "ts_01", "0.0")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{mdocPath})
	require.NoError(t, err)
	require.NoError(t, h.PersistChanges())
	previous, err := os.ReadFile(s.config.Document)
	require.NoError(t, err)

	fresh := s.open(t, true)
	assert.Empty(t, fresh.Snapshot())
	backup, err := os.ReadFile(s.config.Document + ".BAK")
	require.NoError(t, err)
	assert.Equal(t, previous, backup)
}

func TestIncinerateAndRestore(t *testing.T) {
	s := newSession(t)
	first := s.addSeries(t, "ts_01", "0.0", "3.0")
	second := s.addSeries(t, "ts_02", "0.0")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{first, second})
	require.NoError(t, err)
	require.NoError(t, h.SelectMdoc(second, false))
	mic := filepath.Join(s.config.Resolve(s.config.MicDir), s.config.MicrographFileName(movieName("ts_02", 0, "0.0")))

	report, err := h.Incinerate()
	require.NoError(t, err)
	assert.Equal(t, []string{second}, report.Incinerated)
	assert.NoFileExists(t, second)
	assert.NoFileExists(t, mic)
	_, err = s.open(t, false).lib.GetRecord(second)
	assert.True(t, IsKind(err, ConsistencyError), "persisted document no longer holds the tilt series")

	restored, err := h.Restore()
	require.NoError(t, err)
	assert.Equal(t, []string{second}, restored.Restored)
	assert.FileExists(t, second)
	assert.FileExists(t, mic)
	record, err := s.open(t, false).lib.GetRecord(second)
	require.NoError(t, err)
	assert.Equal(t, document.AllSelected, record.Header.Selected)
}

func TestRestackWithoutToolChangesNothing(t *testing.T) {
	s := newSession(t)
	s.config.ImodBin = t.TempDir()
	mdocPath := s.addSeries(t, "ts_01", "0.0", "3.0")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{mdocPath})
	require.NoError(t, err)
	require.NoError(t, h.SelectMicrograph(mdocPath, "tilt_no_2", false))
	before, err := os.ReadFile(mdocPath)
	require.NoError(t, err)

	preview, err := h.PreviewRestack("ts_01.mrc.mdoc")
	require.NoError(t, err)
	assert.Contains(t, preview, movieName("ts_01", 1, "3.0"))

	results, err := h.Restack(context.Background())
	assert.True(t, IsKind(err, ExternalToolMissingError))
	assert.Empty(t, results)
	after, err := os.ReadFile(mdocPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, s.config.Document, "nothing to persist")
}

func TestPrintTree(t *testing.T) {
	s := newSession(t)
	first := s.addSeries(t, "ts_01", "0.0", "3.0", "-3.0")
	second := s.addSeries(t, "ts_02", "0.0")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{first, second})
	require.NoError(t, err)
	require.NoError(t, h.SelectMicrograph(first, "tilt_no_1", false))

	h.PrintTree(false)
	tree := s.terminal.String()
	assert.Contains(t, tree, library.VirtualTarget)
	assert.Contains(t, tree, "ts_01.mrc.mdoc [2/3 kept]")
	assert.Contains(t, tree, "ts_02.mrc.mdoc [1/1 kept]")
	assert.Less(t, strings.Index(tree, "tilt_no_3"), strings.Index(tree, "tilt_no_1"), "micrographs ordered by angle")

	s.terminal.Reset()
	h.PrintTree(true)
	assert.Contains(t, s.terminal.String(), "ts_01.mrc.mdoc")
	assert.NotContains(t, s.terminal.String(), "ts_02.mrc.mdoc")

	s.terminal.Reset()
	h.PrintSummary()
	assert.Contains(t, s.terminal.String(), "1 targets, 2 tilt series (1 all, 1 some, 0 none selected), 3/4 micrographs kept")

	s.terminal.Reset()
	require.NoError(t, h.PrintQuery("$..NumTilts"))
	assert.Contains(t, s.terminal.String(), `"3"`)
	assert.Error(t, h.PrintQuery("$[?("))
}

func TestWatchIngestsNewSeries(t *testing.T) {
	s := newSession(t)
	first := s.addSeries(t, "ts_01", "0.0")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{first})
	require.NoError(t, err)

	staged := newSession(t) //separate directory
	staged.config.InDir = filepath.Join(s.dir, "staging")
	stagedMdoc := staged.addSeries(t, "ts_02", "0.0", "3.0")
	testChdir(t, s.dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- h.Watch(ctx, 20*time.Millisecond) }()
	time.Sleep(100 * time.Millisecond) //let the watches settle

	second := filepath.Join(s.config.SeriesDir("ts_02"), "ts_02.mrc.mdoc")
	require.NoError(t, os.Rename(filepath.Dir(stagedMdoc), filepath.Dir(second)))

	assert.Eventually(t, func() bool {
		return len(h.Snapshot()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.FileExists(t, s.config.Document, "new tilt series persisted")
}

func TestWatchCompletesGrowingAndBrokenSeries(t *testing.T) {
	s := newSession(t)
	first := s.addSeries(t, "ts_01", "0.0")
	h := s.open(t, false)
	_, err := h.IngestMdocs([]string{first})
	require.NoError(t, err)

	growing := s.addSeries(t, "ts_05", "0.0", "3.0", "-3.0")
	broken := s.addSeries(t, "ts_06", "0.0")
	require.NoError(t, os.Remove(growing))
	require.NoError(t, os.Remove(broken))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- h.Watch(ctx, 20*time.Millisecond) }()
	time.Sleep(100 * time.Millisecond) //let the watches settle

	write(t, broken, "PixelSpacing = 1.5\n\n[ZValue = 0]\nTiltAngle = 0.0\n")
	write(t, growing, seriesContent("ts_05", "0.0", "3.0"))
	require.Eventually(t, func() bool {
		return len(h.Snapshot()[growing]) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotContains(t, h.Snapshot(), broken, "block without SubFramePath")
	require.NoError(t, h.SelectMicrograph(growing, "tilt_no_1", false))

	write(t, broken, seriesContent("ts_06", "0.0"))
	write(t, growing, seriesContent("ts_05", "0.0", "3.0", "-3.0"))
	assert.Eventually(t, func() bool {
		snapshot := h.Snapshot()
		return len(snapshot[growing]) == 3 && len(snapshot[broken]) == 1
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	snapshot := h.Snapshot()
	assert.False(t, snapshot[growing][movieName("ts_05", 0, "0.0")], "selection survives the refresh")
	assert.True(t, snapshot[growing][movieName("ts_05", 2, "-3.0")])
	record, err := h.lib.GetRecord(growing)
	require.NoError(t, err)
	assert.Equal(t, "3", record.Header.NumTilts)
	assert.Equal(t, document.SomeSelected, record.Header.Selected)

	reopened := s.open(t, false)
	assert.Equal(t, snapshot, reopened.Snapshot(), "refreshed series persisted")
}

// testChdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
