package layout

import (
	"fmt"
	"path/filepath"
	"strings"
)

const mdocSuffix = ".mrc.mdoc"

// Category is a kind of archived artifact directory.
type Category string

const (
	MovieCategory   Category = "movie_dir"
	TifCategory     Category = "tif_dir"
	MicCategory     Category = "mic_dir"
	DenoiseCategory Category = "denoise_dir"
	SeriesCategory  Category = "ts_dir"
)

// FileCategories lists the per-micrograph artifact categories in archival order.
var FileCategories = []Category{MovieCategory, TifCategory, MicCategory, DenoiseCategory}

// Artifacts are the derived per-micrograph paths, present or not.
type Artifacts struct {
	MoviePath    string
	McorrMic     string
	TiffFile     string
	MicThumbnail string
	CtfThumbnail string
	DenoiseMic   string
}

// Resolve substitutes the input directory.
func (c Config) Resolve(pattern string) string {
	return strings.ReplaceAll(pattern, InDirPlaceholder, c.InDir)
}

// SeriesDir yields the directory of the tilt series with the given stem, empty if no tilt-series directory is configured.
func (c Config) SeriesDir(stem string) string {
	if c.TsDir == "" {
		return ""
	}
	return strings.ReplaceAll(c.Resolve(c.TsDir), StemPlaceholder, stem)
}

// MdocBase is the metadata file name without the ".mrc.mdoc" extension.
func MdocBase(mdocPath string) string {
	return strings.TrimSuffix(filepath.Base(mdocPath), mdocSuffix)
}

// MdocPrefix is the metadata file name up to the first dot.
func MdocPrefix(mdocPath string) string {
	base := filepath.Base(mdocPath)
	if dot := strings.Index(base, "."); dot >= 0 {
		return base[:dot]
	}
	return base
}

// MdocFileName yields the metadata file name belonging to a stack stem.
func MdocFileName(stem string) string {
	return stem + mdocSuffix
}

func (c Config) CtfSummaryPath(mdocPath string) string {
	return filepath.Join(filepath.Dir(mdocPath), c.CtfSummary)
}

func (c Config) CentralSlicePattern(mdocPath string) string {
	return filepath.Join(filepath.Dir(mdocPath), MdocBase(mdocPath)+"*"+c.SliceJpg)
}

func (c Config) SeriesCtfPlotPattern(mdocPath string) string {
	return filepath.Join(filepath.Dir(mdocPath), c.CtfbytsSeries)
}

func (c Config) DosefitPlotPattern(mdocPath string) string {
	return filepath.Join(filepath.Dir(mdocPath), c.DosefitPlot)
}

// OrigMdocPath is the unmodified metadata file as written by the acquisition software.
func (c Config) OrigMdocPath(mdocPath string) string {
	return filepath.Join(filepath.Dir(mdocPath), MdocPrefix(mdocPath)+c.OrigMdocSuffix)
}

// Micrograph derives all artifact paths of one micrograph.
// The angle rank is the position of the micrograph when the series is sorted by tilt angle.
func (c Config) Micrograph(mdocPath string, movieBase string, angleRank int) Artifacts {
	stem := movieBase
	if dot := strings.LastIndex(movieBase, "."); dot > 0 {
		stem = movieBase[:dot]
	}
	thumbDir := filepath.Join(filepath.Dir(mdocPath), c.MicthumbDir)
	thumbIndex := fmt.Sprintf(".%03d.", angleRank)
	return Artifacts{
		MoviePath:    filepath.Join(c.Resolve(c.MovieDir), movieBase),
		McorrMic:     filepath.Join(c.Resolve(c.MicDir), stem+c.MicPattern),
		TiffFile:     filepath.Join(c.Resolve(c.TifDir), stem+".tif"),
		MicThumbnail: filepath.Join(thumbDir, MdocBase(mdocPath)+c.MicthumbSuffix+thumbIndex+c.ThumbFormat),
		CtfThumbnail: filepath.Join(thumbDir, MdocBase(mdocPath)+c.CtfthumbSuffix+thumbIndex+c.ThumbFormat),
		DenoiseMic:   filepath.Join(c.Resolve(c.DenoiseDir), stem+c.MicPattern),
	}
}

// MicrographFileName is the motion-corrected micrograph name belonging to a movie.
func (c Config) MicrographFileName(movieBase string) string {
	stem := movieBase
	if dot := strings.LastIndex(movieBase, "."); dot > 0 {
		stem = movieBase[:dot]
	}
	return stem + c.MicPattern
}

// StackPatterns match the image stack of a tilt series.
func (c Config) StackPatterns(mdocPath string) []string {
	dir := filepath.Dir(mdocPath)
	return []string{
		filepath.Join(dir, "*"+c.MicthumbSuffix+".mrc"),
		filepath.Join(dir, "*"+c.MicthumbSuffix+".st"),
	}
}

// DefaultStackPath is used when a tilt series has no image stack yet.
func (c Config) DefaultStackPath(mdocPath string) string {
	return filepath.Join(filepath.Dir(mdocPath), MdocPrefix(mdocPath)+c.MicthumbSuffix+".mrc")
}

// FileListPath is the input list of the stacking tool.
func (c Config) FileListPath(mdocPath string) string {
	return filepath.Join(filepath.Dir(mdocPath), MdocPrefix(mdocPath)+"_heatwave.txt")
}

// RunLogPath keeps the output of the stacking tool.
func (c Config) RunLogPath(mdocPath string) string {
	return strings.TrimSuffix(mdocPath, mdocSuffix) + c.StackSuffix + ".out"
}

// ArchiveRoot is the resolved incineration directory.
func (c Config) ArchiveRoot() string {
	return c.Resolve(c.IncinerateDir)
}

// ArchiveDir mirrors the active directory of a category below the archive root.
func (c Config) ArchiveDir(category Category) string {
	root := c.ArchiveRoot()
	switch category {
	case MovieCategory:
		return filepath.Join(root, stripInDir(c.MovieDir))
	case SeriesCategory:
		return filepath.Join(root, stripInDir(filepath.Dir(c.TsDir)))
	case TifCategory:
		return filepath.Join(root, stripInDir(c.TifDir))
	case MicCategory:
		return filepath.Join(root, stripInDir(c.MicDir))
	case DenoiseCategory:
		return filepath.Join(root, stripInDir(c.DenoiseDir))
	}
	panic("unknown artifact category: " + string(category))
}

// Of picks the path of the category from the micrograph artifacts.
func (a Artifacts) Of(category Category) string {
	switch category {
	case MovieCategory:
		return a.MoviePath
	case TifCategory:
		return a.TiffFile
	case MicCategory:
		return a.McorrMic
	case DenoiseCategory:
		return a.DenoiseMic
	}
	return ""
}

func stripInDir(pattern string) string {
	return strings.TrimPrefix(pattern, InDirPlaceholder+string(filepath.Separator))
}
