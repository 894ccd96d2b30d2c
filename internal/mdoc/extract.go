package mdoc

import (
	"fmt"
	"strconv"
	"strings"
)

// GeneralKeys lists the header keys taken over into the metadata, whether they appear in the header or inside a block.
var GeneralKeys = []string{
	"PixelSpacing",
	"ImageFile",
	"Voltage",
	"Magnification",
	"FilterSlitAndLoss",
	"UncroppedSize",
	"NumSubFrames",
	"ExposureTime",
}

const (
	instrumentMarker = "Titan Krios"
	tiltAxisMarker   = "Tilt axis angle"

	CollectionDateKey = "CollectionDate"
	TiltAxisAngleKey  = "Tilt axis angle"
	BinningKey        = "Binning"
	SpotsizeKey       = "Spotsize"
)

const TiltKeyPrefix = "tilt_no_"

// Tilt holds the values of one block.
type Tilt struct {
	Key          string //tilt_no_<N>, counting blocks from 1 in file order
	ZValue       int
	TiltAngle    string
	DoseRate     string
	SubFramePath string
	DateTime     string
}

// Metadata is the extracted content of a metadata file with tilts in block order.
type Metadata struct {
	General map[string]string
	Tilts   []Tilt
}

// Extract maps the parsed file onto general values and per-block tilts.
func Extract(file File) (Metadata, error) {
	meta := Metadata{General: make(map[string]string)}

	for _, line := range file.Header {
		fields := strings.Split(line, "=")
		if len(fields) == 2 {
			if strings.Contains(line, instrumentMarker) {
				meta.General[CollectionDateKey] = slice(strings.TrimSpace(line), -20, -1)
				continue
			}
			key := strings.TrimSpace(fields[0])
			if isGeneralKey(key) {
				meta.General[key] = strings.TrimSpace(fields[1])
			}
		} else if strings.Contains(line, tiltAxisMarker) {
			if err := extractTiltAxis(fields, meta.General); err != nil {
				return Metadata{}, err
			}
		}
	}

	for n, block := range file.Blocks {
		tilt := Tilt{Key: TiltKeyPrefix + strconv.Itoa(n+1)}
		index, err := block.Index()
		if err != nil {
			return Metadata{}, err
		}
		tilt.ZValue = index
		for _, line := range block[1:] {
			fields := strings.Split(line, "=")
			if len(fields) < 2 {
				continue
			}
			key, value := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
			switch key {
			case "TiltAngle":
				tilt.TiltAngle = value
			case "DoseRate":
				tilt.DoseRate = value
			case "SubFramePath":
				tilt.SubFramePath = value
			case "DateTime":
				tilt.DateTime = value
			default:
				if isGeneralKey(key) {
					meta.General[key] = value
				}
			}
		}
		meta.Tilts = append(meta.Tilts, tilt)
	}
	return meta, nil
}

func extractTiltAxis(fields []string, general map[string]string) error {
	if len(fields) < 5 {
		return fmt.Errorf("tilt axis line has %d fields, expected at least 5", len(fields))
	}
	binning, spotsize := strings.TrimSpace(fields[3]), strings.TrimSpace(fields[4])
	if binning == "" || spotsize == "" {
		return fmt.Errorf("tilt axis line lacks binning or spot size")
	}
	general[TiltAxisAngleKey] = slice(strings.TrimSpace(fields[2]), 0, 4)
	general[BinningKey] = binning[:1]
	general[SpotsizeKey] = spotsize[:1]
	return nil
}

func isGeneralKey(key string) bool {
	for _, k := range GeneralKeys {
		if k == key {
			return true
		}
	}
	return false
}

// slice cuts s[start:end] where negative bounds count from the end and out-of-range bounds are clamped.
func slice(s string, start, end int) string {
	clamp := func(i int) int {
		if i < 0 {
			i += len(s)
		}
		if i < 0 {
			return 0
		}
		if i > len(s) {
			return len(s)
		}
		return i
	}
	start, end = clamp(start), clamp(end)
	if start >= end {
		return ""
	}
	return s[start:end]
}

// Angle yields the tilt angle as a number, unparsable angles sort as zero.
func (t Tilt) Angle() float64 {
	angle, _ := strconv.ParseFloat(t.TiltAngle, 64)
	return angle
}
