package library

import (
	"encoding/json"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
)

type jsonTarget map[string]json.RawMessage

func (lib *library) MarshalJSON() ([]byte, error) {
	root := make(map[string]map[string]interface{}, len(lib.targets))
	for name, members := range lib.targets {
		persisted := make(map[string]interface{}, len(members))
		for key, entry := range members {
			switch entry.Kind {
			case MdocEntry:
				persisted[key] = entry.Record
			case AuxiliaryEntry:
				persisted[key] = entry.Path
			}
		}
		root[name] = persisted
	}
	return json.Marshal(root)
}

func (lib *library) UnmarshalJSON(blob []byte) error {
	var loaded map[string]jsonTarget
	if err := json.Unmarshal(blob, &loaded); err != nil {
		return err
	}
	targets := make(map[string]target, len(loaded))
	for name, members := range loaded {
		decoded := make(target, len(members))
		for key, raw := range members {
			if key == AuxiliaryKey {
				var path string
				if err := json.Unmarshal(raw, &path); err != nil {
					return fault.New(fault.Parse, name, "auxiliary entry is not a path", err)
				}
				decoded[key] = Entry{Kind: AuxiliaryEntry, Path: path}
				continue
			}
			record := new(document.Record)
			if err := json.Unmarshal(raw, record); err != nil {
				return fault.New(fault.Parse, key, "tilt series record malformed", err)
			}
			decoded[key] = Entry{Kind: MdocEntry, Record: record}
		}
		targets[name] = decoded
	}
	index, err := buildIndex(targets)
	if err != nil {
		return err
	}
	lib.targets = targets
	lib.mdocIndex = index
	return nil
}
