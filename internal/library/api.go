package library

import (
	"github.com/n2code/heatwave/internal/document"
)

// Api expects mdoc keys to be full paths of metadata files, basenames are unique across all targets.
type Api interface {
	AddTarget(name string)
	InsertRecord(targetName string, mdocKey string, record *document.Record) error
	RemoveRecord(mdocKey string) (Location, *document.Record, error)
	SetAuxiliaryPath(targetName string, path string)
	AuxiliaryPath(targetName string) (path string, exists bool)
	Lookup(mdocBase string) (Location, bool)
	GetRecord(mdocKey string) (*document.Record, error)
	VisitRecords(visitor func(Location, *document.Record))
	Targets() []string
	PruneEmptyTargets() (removed []string)
	Validate() (tsDirPattern string, err error)

	SetMicrographSelection(mdocKey string, tiltKey string, selected bool) (document.Selection, error)
	SetMdocSelection(mdocKey string, selected bool) error
	Reconcile(snapshot Snapshot) (changed int, err error)
	SetNote(mdocKey string, text string) error

	Summary() Summary
	Query(jsonPath string) ([]interface{}, error)

	SaveToLocalFile(path string) error
	LoadFromLocalFile(path string) error
}

func MakeRuntimeLibrary() Api {
	return &library{
		targets:   make(map[string]target),
		mdocIndex: make(map[string]Location)}
}
