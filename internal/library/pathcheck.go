package library

import (
	"path/filepath"
	"strings"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
)

// StemPlaceholder stands for the per-series directory name in tilt-series directory patterns.
const StemPlaceholder = "$MDOC_STEM"

// Validate checks the naming conventions of all metadata files on record:
// each file name starts with the name of its directory and all such directories share one parent.
// The shared layout is returned as a pattern using StemPlaceholder.
func (lib *library) Validate() (tsDirPattern string, err error) {
	lib.VisitRecords(func(location Location, _ *document.Record) {
		if err != nil {
			return
		}
		var pattern string
		pattern, err = seriesDirPattern(location.MdocKey)
		if err != nil {
			return
		}
		if tsDirPattern == "" {
			tsDirPattern = pattern
		} else if pattern != tsDirPattern {
			err = fault.Parsef(location.MdocKey, "tilt series directories must share one parent, expected pattern %s but found %s", tsDirPattern, pattern)
		}
	})
	if err != nil {
		return "", err
	}
	return tsDirPattern, nil
}

func seriesDirPattern(mdocKey string) (string, error) {
	dir := filepath.Dir(mdocKey)
	seriesDir := filepath.Base(dir)
	if !strings.HasPrefix(filepath.Base(mdocKey), seriesDir) {
		return "", fault.Parsef(mdocKey, "metadata file name is expected to start with its directory name %s", seriesDir)
	}
	return strings.ReplaceAll(dir, seriesDir, StemPlaceholder), nil
}
