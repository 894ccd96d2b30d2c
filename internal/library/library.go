package library

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/n2code/heatwave/internal"
	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
)

func (lib *library) AddTarget(name string) {
	if _, exists := lib.targets[name]; !exists {
		lib.targets[name] = make(target)
	}
}

func (lib *library) InsertRecord(targetName string, mdocKey string, record *document.Record) error {
	if record == nil {
		return fault.Consistencyf(mdocKey, "no record to insert")
	}
	base := filepath.Base(mdocKey)
	if base == AuxiliaryKey {
		return fault.Parsef(mdocKey, "metadata file name collides with reserved key %s", AuxiliaryKey)
	}
	if known, exists := lib.mdocIndex[base]; exists {
		return fault.Parsef(mdocKey, "metadata file name already on record as %s (target %s)", known.MdocKey, known.Target)
	}
	lib.AddTarget(targetName)
	lib.targets[targetName][mdocKey] = Entry{Kind: MdocEntry, Record: record}
	lib.mustRefreshIndex("basename checked to be unique before insertion")
	return nil
}

func (lib *library) RemoveRecord(mdocKey string) (Location, *document.Record, error) {
	location, record, err := lib.locate(mdocKey)
	if err != nil {
		return Location{}, nil, err
	}
	delete(lib.targets[location.Target], mdocKey)
	lib.mustRefreshIndex("removal cannot introduce duplicates")
	return location, record, nil
}

func (lib *library) SetAuxiliaryPath(targetName string, path string) {
	lib.AddTarget(targetName)
	lib.targets[targetName][AuxiliaryKey] = Entry{Kind: AuxiliaryEntry, Path: path}
}

func (lib *library) AuxiliaryPath(targetName string) (path string, exists bool) {
	entry, exists := lib.targets[targetName][AuxiliaryKey]
	if !exists || entry.Kind != AuxiliaryEntry {
		return "", false
	}
	return entry.Path, true
}

func (lib *library) Lookup(mdocBase string) (Location, bool) {
	location, exists := lib.mdocIndex[mdocBase]
	return location, exists
}

func (lib *library) GetRecord(mdocKey string) (*document.Record, error) {
	_, record, err := lib.locate(mdocKey)
	return record, err
}

// VisitRecords calls the visitor for every tilt series, ordered by target and mdoc key.
// The visitor must not add or remove records.
func (lib *library) VisitRecords(visitor func(Location, *document.Record)) {
	for _, name := range lib.Targets() {
		members := lib.targets[name]
		keys := make([]string, 0, len(members))
		for key, entry := range members {
			if entry.Kind == MdocEntry {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			visitor(Location{Target: name, MdocKey: key}, members[key].Record)
		}
	}
}

func (lib *library) Targets() []string {
	names := make([]string, 0, len(lib.targets))
	for name := range lib.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PruneEmptyTargets removes all targets that hold no tilt series (an auxiliary path alone does not count).
func (lib *library) PruneEmptyTargets() (removed []string) {
	for _, name := range lib.Targets() {
		hasRecord := false
		for _, entry := range lib.targets[name] {
			if entry.Kind == MdocEntry {
				hasRecord = true
				break
			}
		}
		if !hasRecord {
			removed = append(removed, name)
		}
	}
	for _, name := range removed {
		delete(lib.targets, name)
	}
	return
}

func (lib *library) locate(mdocKey string) (Location, *document.Record, error) {
	location, indexed := lib.mdocIndex[filepath.Base(mdocKey)]
	if !indexed || location.MdocKey != mdocKey {
		return Location{}, nil, fault.Consistencyf(mdocKey, "metadata file not on record")
	}
	entry, exists := lib.targets[location.Target][mdocKey]
	if !exists || entry.Kind != MdocEntry || entry.Record == nil {
		return Location{}, nil, fault.Consistencyf(mdocKey, "index and document out of sync")
	}
	return location, entry.Record, nil
}

func (lib *library) mustRefreshIndex(because string) {
	index, err := buildIndex(lib.targets)
	internal.AssertNoError(err, because)
	lib.mdocIndex = index
}

// buildIndex derives the basename lookup from the targets, duplicate basenames are an error.
func buildIndex(targets map[string]target) (map[string]Location, error) {
	index := make(map[string]Location)
	for name, members := range targets {
		for key, entry := range members {
			if entry.Kind != MdocEntry {
				continue
			}
			base := filepath.Base(key)
			if known, duplicate := index[base]; duplicate {
				return nil, fault.Parsef(key, "metadata file name %s is not unique (also %s)", base, known.MdocKey)
			}
			index[base] = Location{Target: name, MdocKey: key}
		}
	}
	return index, nil
}

func (lib *library) Summary() (summary Summary) {
	summary.Targets = len(lib.targets)
	summary.Selected = make(map[document.Selection]int)
	summary.Artifacts = make(map[string]int)
	lib.VisitRecords(func(_ Location, record *document.Record) {
		summary.Mdocs++
		summary.Selected[record.Header.Selected]++
		for _, mic := range record.Tilts {
			summary.Micrographs++
			if mic.Selected {
				summary.KeptMicrographs++
			}
			for kind, path := range ArtifactPaths(mic) {
				if path != "" {
					summary.Artifacts[kind]++
				}
			}
		}
	})
	return
}

// ArtifactPaths maps the artifact kind of each derived micrograph path to the path.
func ArtifactPaths(mic *document.Micrograph) map[string]string {
	return map[string]string{
		"MoviePath":    mic.MoviePath,
		"McorrMic":     mic.McorrMic,
		"TiffFile":     mic.TiffFile,
		"MicThumbnail": mic.MicThumbnail,
		"CtfThumbnail": mic.CtfThumbnail,
		"DenoiseMic":   mic.DenoiseMic,
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("%d targets, %d tilt series (%d all, %d some, %d none selected), %d/%d micrographs kept",
		s.Targets, s.Mdocs, s.Selected[document.AllSelected], s.Selected[document.SomeSelected], s.Selected[document.NoneSelected],
		s.KeptMicrographs, s.Micrographs)
}
