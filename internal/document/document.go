package document

import (
	"sort"
	"strconv"
	"strings"

	"github.com/n2code/heatwave/internal/mdoc"
)

// RecomputeSelection derives the aggregate from all micrographs and stores it in the header.
// A record without micrographs counts as fully selected.
func (r *Record) RecomputeSelection() Selection {
	kept, discarded := 0, 0
	for _, mic := range r.Tilts {
		if mic.Selected {
			kept++
		} else {
			discarded++
		}
	}
	switch {
	case discarded == 0:
		r.Header.Selected = AllSelected
	case kept == 0:
		r.Header.Selected = NoneSelected
	default:
		r.Header.Selected = SomeSelected
	}
	return r.Header.Selected
}

// SelectAll sets every micrograph, the aggregate follows from them.
func (r *Record) SelectAll(selected bool) Selection {
	for _, mic := range r.Tilts {
		mic.Selected = selected
	}
	return r.RecomputeSelection()
}

// TiltKeys lists the tilt keys in block order (tilt_no_1, tilt_no_2, ...).
func (r *Record) TiltKeys() []string {
	keys := make([]string, 0, len(r.Tilts))
	for key := range r.Tilts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return tiltOrdinal(keys[i]) < tiltOrdinal(keys[j])
	})
	return keys
}

// TiltKeysByAngle lists the tilt keys sorted by tilt angle, ties keep block order.
func (r *Record) TiltKeysByAngle() []string {
	keys := r.TiltKeys()
	sort.SliceStable(keys, func(i, j int) bool {
		return r.Tilts[keys[i]].Angle() < r.Tilts[keys[j]].Angle()
	})
	return keys
}

// TiltKeyByMovie finds the micrograph whose raw-frame file has the given name.
func (r *Record) TiltKeyByMovie(movieBase string) (key string, found bool) {
	for _, key := range r.TiltKeys() {
		if r.Tilts[key].MovieBase() == movieBase {
			return key, true
		}
	}
	return "", false
}

// Clone yields a deep copy.
func (r *Record) Clone() *Record {
	clone := &Record{Header: r.Header, Tilts: make(map[string]*Micrograph, len(r.Tilts))}
	clone.Header.General = make(map[string]string, len(r.Header.General))
	for k, v := range r.Header.General {
		clone.Header.General[k] = v
	}
	for key, mic := range r.Tilts {
		copied := *mic
		if mic.CtfFind4 != nil {
			defocus := *mic.CtfFind4
			copied.CtfFind4 = &defocus
		}
		if mic.MaxRes != nil {
			res := *mic.MaxRes
			copied.MaxRes = &res
		}
		clone.Tilts[key] = &copied
	}
	return clone
}

// Angle yields the tilt angle as a number, unparsable angles count as zero.
func (m *Micrograph) Angle() float64 {
	angle, _ := strconv.ParseFloat(m.TiltAngle, 64)
	return angle
}

// MovieBase is the file name of the raw frames.
func (m *Micrograph) MovieBase() string {
	return mdoc.FrameBase(m.SubFramePath)
}

// MovieStem is the file name of the raw frames without extension.
func (m *Micrograph) MovieStem() string {
	base := m.MovieBase()
	if dot := strings.LastIndex(base, "."); dot > 0 {
		return base[:dot]
	}
	return base
}

func tiltOrdinal(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(key, mdoc.TiltKeyPrefix))
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
