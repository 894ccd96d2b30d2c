package document

import (
	"encoding/json"
	"fmt"
)

const (
	mdocNameKey     = "Mdoc_name"
	mdocLocationKey = "Mdoc_location"
	numTiltsKey     = "NumTilts"
	ctfSummaryKey   = "CtfSummary"
	centralSliceKey = "CentralSlice"
	ctfBytsPlotKey  = "CtfBytsPlot"
	dosefitPlotKey  = "DosefitPlot"
	selectedKey     = "MdocSelected"
	textNoteKey     = "TextNote"
)

type jsonMicrograph struct {
	ZValue       int
	TiltAngle    string `json:",omitempty"`
	DoseRate     string `json:",omitempty"`
	SubFramePath string
	DateTime     string   `json:",omitempty"`
	MoviePath    string   `json:",omitempty"`
	McorrMic     string   `json:",omitempty"`
	TiffFile     string   `json:",omitempty"`
	MicThumbnail string   `json:",omitempty"`
	CtfThumbnail string   `json:",omitempty"`
	DenoiseMic   string   `json:",omitempty"`
	CtfFind4     *float64 `json:",omitempty"`
	MaxRes       *float64 `json:",omitempty"`
	CumExposure  float64
	CumDose      float64
	MicSelected  *bool //absent in documents written before selection existed
}

func (m *Micrograph) MarshalJSON() ([]byte, error) {
	selected := m.Selected
	return json.Marshal(jsonMicrograph{
		ZValue:       m.ZValue,
		TiltAngle:    m.TiltAngle,
		DoseRate:     m.DoseRate,
		SubFramePath: m.SubFramePath,
		DateTime:     m.DateTime,
		MoviePath:    m.MoviePath,
		McorrMic:     m.McorrMic,
		TiffFile:     m.TiffFile,
		MicThumbnail: m.MicThumbnail,
		CtfThumbnail: m.CtfThumbnail,
		DenoiseMic:   m.DenoiseMic,
		CtfFind4:     m.CtfFind4,
		MaxRes:       m.MaxRes,
		CumExposure:  m.CumExposure,
		CumDose:      m.CumDose,
		MicSelected:  &selected,
	})
}

func (m *Micrograph) UnmarshalJSON(blob []byte) error {
	loaded := jsonMicrograph{CumExposure: Unknown, CumDose: Unknown}
	if err := json.Unmarshal(blob, &loaded); err != nil {
		return err
	}
	*m = Micrograph{
		ZValue:       loaded.ZValue,
		TiltAngle:    loaded.TiltAngle,
		DoseRate:     loaded.DoseRate,
		SubFramePath: loaded.SubFramePath,
		DateTime:     loaded.DateTime,
		MoviePath:    loaded.MoviePath,
		McorrMic:     loaded.McorrMic,
		TiffFile:     loaded.TiffFile,
		MicThumbnail: loaded.MicThumbnail,
		CtfThumbnail: loaded.CtfThumbnail,
		DenoiseMic:   loaded.DenoiseMic,
		CtfFind4:     loaded.CtfFind4,
		MaxRes:       loaded.MaxRes,
		CumExposure:  loaded.CumExposure,
		CumDose:      loaded.CumDose,
		Selected:     loaded.MicSelected == nil || *loaded.MicSelected,
	}
	return nil
}

// MarshalJSON flattens the general values and the known fields into one object.
func (h *Header) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(h.General)+10)
	for key, value := range h.General {
		flat[key] = value
	}
	flat[mdocNameKey] = h.MdocName
	flat[mdocLocationKey] = h.MdocLocation
	flat[numTiltsKey] = h.NumTilts
	flat[selectedKey] = int(h.Selected)
	optional := map[string]string{
		ctfSummaryKey:   h.CtfSummary,
		centralSliceKey: h.CentralSlice,
		ctfBytsPlotKey:  h.CtfBytsPlot,
		dosefitPlotKey:  h.DosefitPlot,
		textNoteKey:     h.TextNote,
	}
	for key, value := range optional {
		if value != "" {
			flat[key] = value
		}
	}
	return json.Marshal(flat)
}

func (h *Header) UnmarshalJSON(blob []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(blob, &flat); err != nil {
		return err
	}
	*h = Header{General: make(map[string]string)}
	known := map[string]*string{
		mdocNameKey:     &h.MdocName,
		mdocLocationKey: &h.MdocLocation,
		numTiltsKey:     &h.NumTilts,
		ctfSummaryKey:   &h.CtfSummary,
		centralSliceKey: &h.CentralSlice,
		ctfBytsPlotKey:  &h.CtfBytsPlot,
		dosefitPlotKey:  &h.DosefitPlot,
		textNoteKey:     &h.TextNote,
	}
	for key, raw := range flat {
		if key == selectedKey {
			var selected int
			if err := json.Unmarshal(raw, &selected); err != nil {
				return fmt.Errorf("bad %s value: %w", selectedKey, err)
			}
			h.Selected = Selection(selected)
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("header value %s is not text: %w", key, err)
		}
		if target, isKnown := known[key]; isKnown {
			*target = value
		} else {
			h.General[key] = value
		}
	}
	return nil
}

// MarshalJSON writes the record as a two-element array [header, tilts].
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{&r.Header, r.Tilts})
}

func (r *Record) UnmarshalJSON(blob []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(blob, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("record must consist of header and tilts, found %d elements", len(parts))
	}
	var loaded Record
	if err := json.Unmarshal(parts[0], &loaded.Header); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[1], &loaded.Tilts); err != nil {
		return err
	}
	if loaded.Tilts == nil {
		loaded.Tilts = make(map[string]*Micrograph)
	}
	*r = loaded
	return nil
}
