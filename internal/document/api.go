package document

import "fmt"

// Selection is the aggregate selection state of a tilt series.
type Selection int

const (
	NoneSelected Selection = iota //every micrograph discarded
	SomeSelected                  //mixed state, only ever the result of a recomputation
	AllSelected                   //every micrograph kept
)

func (s Selection) String() string {
	switch s {
	case NoneSelected:
		return "none"
	case SomeSelected:
		return "some"
	case AllSelected:
		return "all"
	}
	return fmt.Sprintf("Selection(%d)", int(s))
}

// NewRecord creates a record with all micrographs selected.
func NewRecord(header Header, tilts map[string]*Micrograph) *Record {
	if tilts == nil {
		tilts = make(map[string]*Micrograph)
	}
	if header.General == nil {
		header.General = make(map[string]string)
	}
	record := &Record{Header: header, Tilts: tilts}
	record.SelectAll(true)
	return record
}
