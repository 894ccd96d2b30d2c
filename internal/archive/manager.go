package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
	"github.com/n2code/heatwave/internal/fsutil"
	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/library"
)

// Manager moves fully discarded tilt series out of the active tree and back.
type Manager struct {
	config  layout.Config
	lib     library.Api
	journal *Journal
	logger  *slog.Logger
}

// IncinerationReport tells what one incineration run did.
type IncinerationReport struct {
	RunID       uuid.UUID
	Incinerated []string //mdoc keys
	Moves       int
	Missing     []string //artifacts on record but not on disk
}

// RestorationReport tells what a restore did.
type RestorationReport struct {
	Restored []string //mdoc keys
	Moves    int
	Leftover int //files in the archive root not covered by the journal
}

// NewManager opens the journal below the archive root of the configuration.
func NewManager(config layout.Config, lib library.Api, logger *slog.Logger) (*Manager, error) {
	journal, err := OpenJournal(filepath.Join(config.ArchiveRoot(), JournalFileName))
	if err != nil {
		return nil, err
	}
	return &Manager{config: config, lib: lib, journal: journal, logger: logger}, nil
}

// Candidates lists the tilt series eligible for incineration, i.e. with every micrograph discarded.
func (m *Manager) Candidates() (candidates []library.Location) {
	m.lib.VisitRecords(func(location library.Location, record *document.Record) {
		if record.Header.Selected == document.NoneSelected {
			candidates = append(candidates, location)
		}
	})
	return
}

// Incinerate archives every eligible tilt series and removes it from the document.
// Moves are not rolled back if a later move of the same tilt series fails, the journal still covers them.
// A filesystem invariant violation halts the run, other failures only skip the affected tilt series.
func (m *Manager) Incinerate() (report IncinerationReport, err error) {
	candidates := m.Candidates()
	if len(candidates) == 0 {
		return
	}
	if err = m.createArchiveDirs(); err != nil {
		return
	}

	run := m.journal.newRun()
	report.RunID = run.ID
	defer func() {
		if saveErr := m.journal.Save(); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
	}()

	auxiliaries := make(map[string]string)
	for _, name := range m.lib.Targets() {
		if path, exists := m.lib.AuxiliaryPath(name); exists {
			auxiliaries[name] = path
		}
	}

	var problems []error
	for _, location := range candidates {
		movesBefore := len(run.Moves)
		missing, mdocErr := m.incinerateOne(run, location)
		report.Moves += len(run.Moves) - movesBefore
		report.Missing = append(report.Missing, missing...)
		if mdocErr != nil {
			problems = append(problems, mdocErr)
			if fault.Is(mdocErr, fault.FilesystemInvariant) {
				break
			}
			continue
		}
		report.Incinerated = append(report.Incinerated, location.MdocKey)
		m.logger.Info("incinerated tilt series", "mdoc", location.MdocKey, "run", run.ID)
	}

	for _, name := range m.lib.PruneEmptyTargets() {
		if path, exists := auxiliaries[name]; exists {
			run.Auxiliaries[name] = path
		}
		m.logger.Debug("removed empty target", "target", name)
	}
	return report, errors.Join(problems...)
}

func (m *Manager) incinerateOne(run *Run, location library.Location) (missing []string, err error) {
	record, err := m.lib.GetRecord(location.MdocKey)
	if err != nil {
		return nil, err
	}
	seriesDir := filepath.Dir(location.MdocKey)
	if err := m.assertDirectoryNotShared(location.MdocKey, seriesDir); err != nil {
		return nil, err
	}

	if fsutil.Exists(seriesDir) {
		destination := filepath.Join(m.config.ArchiveDir(layout.SeriesCategory), filepath.Base(seriesDir))
		if err := m.move(run, seriesDir, destination); err != nil {
			return nil, err
		}
	} else {
		m.logger.Warn("tilt-series directory does not exist", "dir", seriesDir)
		missing = append(missing, seriesDir)
	}

	for _, category := range layout.FileCategories {
		archiveDir := m.config.ArchiveDir(category)
		for _, tiltKey := range record.TiltKeys() {
			source := artifactsOf(record.Tilts[tiltKey]).Of(category)
			if source == "" {
				continue
			}
			if !fsutil.Exists(source) {
				m.logger.Warn("artifact does not exist", "path", source)
				missing = append(missing, source)
				continue
			}
			if err := m.move(run, source, filepath.Join(archiveDir, filepath.Base(source))); err != nil {
				return missing, err
			}
		}
		m.logger.Debug("incinerated artifacts", "category", category, "mdoc", location.MdocKey)
	}

	removedFrom, removed, err := m.lib.RemoveRecord(location.MdocKey)
	if err != nil {
		return missing, err
	}
	run.Removals = append(run.Removals, Removal{Target: removedFrom.Target, MdocKey: location.MdocKey, Record: removed.Clone()})
	return missing, nil
}

func (m *Manager) assertDirectoryNotShared(mdocKey string, dir string) (err error) {
	m.lib.VisitRecords(func(other library.Location, _ *document.Record) {
		if other.MdocKey != mdocKey && filepath.Dir(other.MdocKey) == dir && err == nil {
			err = fault.Consistencyf(mdocKey, "tilt-series directory %s is shared with %s", dir, other.MdocKey)
		}
	})
	return
}

// move relocates into the archive, the destination must be vacant.
func (m *Manager) move(run *Run, source string, destination string) error {
	if fsutil.Exists(destination) {
		return fault.Invariantf(destination, "archive destination already exists")
	}
	if err := fsutil.Move(source, destination); err != nil {
		return fmt.Errorf("moving %s to %s failed: %w", source, destination, err)
	}
	run.Moves = append(run.Moves, Move{Source: source, Destination: destination})
	m.logger.Debug("moved", "from", source, "to", destination)
	return nil
}

func (m *Manager) createArchiveDirs() error {
	categories := append([]layout.Category{layout.SeriesCategory}, layout.FileCategories...)
	for _, category := range categories {
		dir := m.config.ArchiveDir(category)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating archive directory %s failed: %w", dir, err)
		}
	}
	return nil
}

func artifactsOf(mic *document.Micrograph) layout.Artifacts {
	return layout.Artifacts{
		MoviePath:    mic.MoviePath,
		McorrMic:     mic.McorrMic,
		TiffFile:     mic.TiffFile,
		MicThumbnail: mic.MicThumbnail,
		CtfThumbnail: mic.CtfThumbnail,
		DenoiseMic:   mic.DenoiseMic,
	}
}
