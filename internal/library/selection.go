package library

import (
	"errors"
	"sort"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
)

func (lib *library) SetMicrographSelection(mdocKey string, tiltKey string, selected bool) (document.Selection, error) {
	record, err := lib.GetRecord(mdocKey)
	if err != nil {
		return 0, err
	}
	mic, exists := record.Tilts[tiltKey]
	if !exists {
		return 0, fault.Consistencyf(mdocKey, "no micrograph %s", tiltKey)
	}
	mic.Selected = selected
	return record.RecomputeSelection(), nil
}

func (lib *library) SetMdocSelection(mdocKey string, selected bool) error {
	record, err := lib.GetRecord(mdocKey)
	if err != nil {
		return err
	}
	record.SelectAll(selected)
	return nil
}

// Reconcile applies only those leaves of the snapshot that differ from the document.
// A tilt series with an unknown mdoc or movie is left untouched and reported, the others are still applied.
func (lib *library) Reconcile(snapshot Snapshot) (changed int, err error) {
	mdocKeys := make([]string, 0, len(snapshot))
	for mdocKey := range snapshot {
		mdocKeys = append(mdocKeys, mdocKey)
	}
	sort.Strings(mdocKeys)

	var problems []error
	for _, mdocKey := range mdocKeys {
		record, lookupErr := lib.GetRecord(mdocKey)
		if lookupErr != nil {
			problems = append(problems, lookupErr)
			continue
		}
		updates := make(map[string]bool)
		complete := true
		for movie, selected := range snapshot[mdocKey] {
			tiltKey, found := record.TiltKeyByMovie(movie)
			if !found {
				problems = append(problems, fault.Consistencyf(mdocKey, "no micrograph for movie %s", movie))
				complete = false
				continue
			}
			if record.Tilts[tiltKey].Selected != selected {
				updates[tiltKey] = selected
			}
		}
		if !complete {
			continue
		}
		for tiltKey, selected := range updates {
			record.Tilts[tiltKey].Selected = selected
		}
		changed += len(updates)
		record.RecomputeSelection()
	}
	return changed, errors.Join(problems...)
}

// TakeSnapshot captures the current selection in the form accepted by Reconcile.
func TakeSnapshot(lib Api) Snapshot {
	snapshot := make(Snapshot)
	lib.VisitRecords(func(location Location, record *document.Record) {
		movies := make(map[string]bool, len(record.Tilts))
		for _, mic := range record.Tilts {
			movies[mic.MovieBase()] = mic.Selected
		}
		snapshot[location.MdocKey] = movies
	})
	return snapshot
}

func (lib *library) SetNote(mdocKey string, text string) error {
	record, err := lib.GetRecord(mdocKey)
	if err != nil {
		return err
	}
	record.Header.TextNote = text
	return nil
}
