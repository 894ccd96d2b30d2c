package heatwave

import (
	"context"
	"time"

	"github.com/n2code/heatwave/internal/archive"
	"github.com/n2code/heatwave/internal/library"
	"github.com/n2code/heatwave/internal/restack"
)

// Heatwave lets you interface with a tilt-series document whose handle was retrieved using Open.
// All methods are safe to call concurrently, they are serialized on the handle.
type Heatwave interface {

	// Ingest dispatches to IngestTargets or IngestMdocs, giving both kinds of files is an error.
	// Giving neither is only accepted if a document was loaded.
	Ingest(targetFiles []string, mdocFiles []string) (added []string, err error)

	// IngestTargets reads target files, finds the metadata files they name and adds every tilt series not on record yet.
	// Changes need to be committed with PersistChanges.
	IngestTargets(targetFiles []string) (added []string, err error)

	// IngestMdocs adds the given metadata files below the virtual target.
	// All files must share one top-level directory which becomes the input directory.
	// Changes need to be committed with PersistChanges.
	IngestMdocs(mdocFiles []string) (added []string, err error)

	// SelectMicrograph keeps or discards a single micrograph, identified by tilt key or movie file name.
	// Changes need to be committed with PersistChanges.
	SelectMicrograph(mdoc string, micrograph string, selected bool) error

	// SelectMdoc keeps or discards all micrographs of a tilt series.
	// Changes need to be committed with PersistChanges.
	SelectMdoc(mdoc string, selected bool) error

	// Reconcile applies an externally captured selection state, only differing values are changed.
	// Changes need to be committed with PersistChanges.
	Reconcile(snapshot library.Snapshot) (changed int, err error)

	// Snapshot captures the current selection state in the form accepted by Reconcile.
	Snapshot() library.Snapshot

	// SetNote attaches a free-text note to a tilt series, an empty text removes it.
	// Changes need to be committed with PersistChanges.
	SetNote(mdoc string, text string) error

	// PersistChanges writes the document file.
	PersistChanges() error

	// Incinerate archives all tilt series with every micrograph discarded and drops them from the document.
	// The document is persisted afterwards because the archive journal refers to its state.
	Incinerate() (archive.IncinerationReport, error)

	// Restore moves archived tilt series back and reinserts them with all micrographs selected.
	// The document is persisted afterwards.
	Restore() (archive.RestorationReport, error)

	// Restack rebuilds the image stack and metadata file of every partially selected tilt series, or only of the given ones.
	// The document is persisted afterwards.
	Restack(ctx context.Context, mdocs ...string) ([]restack.Result, error)

	// PreviewRestack returns the unified diff of the metadata file rewrite without changing anything.
	PreviewRestack(mdoc string) (string, error)

	// IncinerationCandidates lists the mdoc keys Incinerate would archive.
	IncinerationCandidates() ([]string, error)

	// RestackCandidates lists the mdoc keys Restack would process.
	RestackCandidates() []string

	// Watch ingests metadata files appearing below the tilt-series tree until the context is cancelled.
	// Each batch is persisted immediately.
	Watch(ctx context.Context, settle time.Duration) error

	// PrintTree outputs targets, tilt series and micrographs, optionally only those not fully selected.
	PrintTree(onlyDeselected bool)

	// PrintSummary outputs counts of targets, tilt series, selections and artifacts found.
	PrintSummary()

	// PrintQuery outputs the results of a JSONPath expression evaluated on the persisted document shape.
	PrintQuery(jsonPath string) error

	// DocumentPath is the absolute path of the document file.
	DocumentPath() string
}

// RequestChoice represents a single-choice decision callback, the first option is considered the default "yes"-like choice.
// If the choice is aborted an empty string must be returned.
// If cleanup is set the implementation is recommended to remove the choice presentation after selection.
type RequestChoice func(request string, options []string, cleanup bool) (choice string)
