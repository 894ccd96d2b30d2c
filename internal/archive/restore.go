package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/n2code/heatwave/internal/fault"
	"github.com/n2code/heatwave/internal/fsutil"
)

// Restore replays the journal backwards, newest run first, and puts the removed tilt series back fully selected.
// Every move needs its original location to be vacant, otherwise the restore halts.
// Replayed moves are dropped from the journal immediately so a halted restore can be resumed.
func (m *Manager) Restore() (report RestorationReport, err error) {
	defer func() {
		if saveErr := m.journal.Save(); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
		count, countErr := m.leftoverFiles()
		if countErr != nil {
			err = errors.Join(err, countErr)
		}
		report.Leftover = count
	}()

	var problems []error
	for len(m.journal.Runs) > 0 {
		run := m.journal.Runs[len(m.journal.Runs)-1]
		for len(run.Moves) > 0 {
			last := run.Moves[len(run.Moves)-1]
			if err := m.moveBack(last); err != nil {
				return report, errors.Join(append(problems, err)...)
			}
			run.Moves = run.Moves[:len(run.Moves)-1]
			report.Moves++
		}
		for len(run.Removals) > 0 {
			removal := run.Removals[len(run.Removals)-1]
			run.Removals = run.Removals[:len(run.Removals)-1]
			if err := m.reinsert(run, removal); err != nil {
				problems = append(problems, err)
				continue
			}
			report.Restored = append(report.Restored, removal.MdocKey)
			m.logger.Info("restored tilt series", "mdoc", removal.MdocKey, "run", run.ID)
		}
		m.journal.Runs = m.journal.Runs[:len(m.journal.Runs)-1]
	}
	return report, errors.Join(problems...)
}

func (m *Manager) moveBack(move Move) error {
	if fsutil.Exists(move.Source) {
		return fault.Invariantf(move.Source, "cannot restore into an occupied location")
	}
	if err := os.MkdirAll(filepath.Dir(move.Source), 0755); err != nil {
		return err
	}
	if err := fsutil.Move(move.Destination, move.Source); err != nil {
		return fmt.Errorf("restoring %s failed: %w", move.Source, err)
	}
	m.logger.Debug("moved back", "from", move.Destination, "to", move.Source)

	if info, err := os.Stat(move.Source); err == nil && info.IsDir() {
		mdocs, _ := filepath.Glob(filepath.Join(move.Source, "*.mdoc"))
		if len(mdocs) != 1 {
			m.logger.Warn("restored directory should hold exactly one metadata file", "dir", move.Source, "found", len(mdocs))
		}
	}
	return nil
}

func (m *Manager) reinsert(run *Run, removal Removal) error {
	if removal.Record == nil {
		return fault.Consistencyf(removal.MdocKey, "journal holds no record to restore")
	}
	removal.Record.SelectAll(true)
	if err := m.lib.InsertRecord(removal.Target, removal.MdocKey, removal.Record); err != nil {
		return err
	}
	if path, pruned := run.Auxiliaries[removal.Target]; pruned {
		if _, exists := m.lib.AuxiliaryPath(removal.Target); !exists {
			m.lib.SetAuxiliaryPath(removal.Target, path)
		}
	}
	return nil
}

// leftoverFiles counts what remains in the archive root apart from the journal itself
// and the destinations of moves the journal still holds, those are restored by resuming.
func (m *Manager) leftoverFiles() (int, error) {
	excluded := map[string]bool{filepath.Clean(m.journal.Path()): true}
	for _, run := range m.journal.Runs {
		for _, move := range run.Moves {
			excluded[filepath.Clean(move.Destination)] = true
		}
	}
	return fsutil.CountFiles(m.config.ArchiveRoot(), func(path string) bool {
		return excluded[filepath.Clean(path)]
	})
}
