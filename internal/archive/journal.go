package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
)

// JournalFileName is the name of the journal inside the archive root.
const JournalFileName = "heatwave-journal.json"

const journalIndent = "   "

// Move is one relocation of a file or directory into the archive.
type Move struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Removal remembers a tilt series taken out of the document.
type Removal struct {
	Target  string           `json:"target"`
	MdocKey string           `json:"mdoc"`
	Record  *document.Record `json:"record"`
}

// Run groups everything one incineration did, moves in the order they happened.
type Run struct {
	ID          uuid.UUID         `json:"id"`
	Started     time.Time         `json:"started"`
	Moves       []Move            `json:"moves"`
	Removals    []Removal         `json:"removals"`
	Auxiliaries map[string]string `json:"auxiliaries,omitempty"` //pruned target -> CTF plot path
}

func (r *Run) empty() bool {
	return len(r.Moves) == 0 && len(r.Removals) == 0
}

// Journal is the persisted undo log of all incineration runs not restored yet.
type Journal struct {
	path string
	Runs []*Run `json:"runs"`
}

// OpenJournal loads the journal, a missing file is an empty journal.
func OpenJournal(path string) (*Journal, error) {
	journal := &Journal{path: path}
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return journal, nil
	}
	if err != nil {
		return nil, fault.New(fault.Parse, path, "journal not readable", err)
	}
	if err := json.Unmarshal(blob, journal); err != nil {
		return nil, fault.New(fault.Parse, path, "journal not loadable", err)
	}
	return journal, nil
}

// Path is where the journal is persisted.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) newRun() *Run {
	run := &Run{ID: uuid.New(), Started: time.Now().UTC(), Auxiliaries: make(map[string]string)}
	j.Runs = append(j.Runs, run)
	return run
}

// Pending counts the moves not restored yet.
func (j *Journal) Pending() (moves int) {
	for _, run := range j.Runs {
		moves += len(run.Moves)
	}
	return
}

// Save persists the journal, an empty journal removes the file.
func (j *Journal) Save() (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("saving journal failed: %w", err)
		}
	}()

	kept := j.Runs[:0]
	for _, run := range j.Runs {
		if !run.empty() {
			kept = append(kept, run)
		}
	}
	j.Runs = kept

	if len(j.Runs) == 0 {
		if err = os.Remove(j.path); errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		return
	}

	if err = os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return
	}
	blob, err := json.MarshalIndent(j, "", journalIndent)
	if err != nil {
		return
	}
	tempPath := j.path + ".wip"
	if err = os.WriteFile(tempPath, blob, 0644); err != nil {
		return
	}
	return os.Rename(tempPath, j.path)
}
