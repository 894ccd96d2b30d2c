package library

import (
	"github.com/n2code/heatwave/internal/document"
)

// VirtualTarget groups tilt series that were ingested without any target file.
const VirtualTarget = "All tilt series"

// AuxiliaryKey is the reserved member key of a target holding its CTF scatter plot path.
const AuxiliaryKey = "CtfBytsPlot"

type EntryKind int

const (
	MdocEntry EntryKind = iota
	AuxiliaryEntry
)

// Entry is a member of a target: either a tilt series record or an auxiliary file path.
type Entry struct {
	Kind   EntryKind
	Record *document.Record //set for MdocEntry
	Path   string           //set for AuxiliaryEntry
}

type target map[string]Entry //member key -> entry

// Location tells where a tilt series is kept in the document.
type Location struct {
	Target  string
	MdocKey string //full path of the metadata file
}

type library struct {
	targets   map[string]target
	mdocIndex map[string]Location //derived, mdoc basename -> location
}

// Snapshot is an externally captured selection state: mdoc key -> movie file name -> selected.
type Snapshot map[string]map[string]bool

// Summary condenses the document into counts.
type Summary struct {
	Targets         int
	Mdocs           int
	Micrographs     int
	Selected        map[document.Selection]int //mdocs per aggregate state
	KeptMicrographs int
	Artifacts       map[string]int //micrographs per found artifact kind
}
