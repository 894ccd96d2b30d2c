package heatwave

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/n2code/heatwave/internal/ctf"
	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/dose"
	"github.com/n2code/heatwave/internal/fault"
	"github.com/n2code/heatwave/internal/fsutil"
	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/library"
	"github.com/n2code/heatwave/internal/mdoc"
	"github.com/n2code/heatwave/internal/output"
)

const targetFileMarker = "tsfile"

// ingestion carries what is shared by all metadata files of one call.
type ingestion struct {
	warned   map[string]bool //artifact kinds already reported as missing
	perImage *float64        //dose per image, determined on first use
}

func (h *heatwave) Ingest(targetFiles []string, mdocFiles []string) ([]string, error) {
	switch {
	case len(targetFiles) > 0 && len(mdocFiles) > 0:
		return nil, fault.Parsef("", "cannot ingest both target files (%d) and metadata files (%d)", len(targetFiles), len(mdocFiles))
	case len(targetFiles) > 0:
		return h.IngestTargets(targetFiles)
	case len(mdocFiles) > 0:
		return h.IngestMdocs(mdocFiles)
	}
	if !h.loaded {
		return nil, fault.Parsef(h.docPath, "target files or metadata files are required to build a new document")
	}
	return nil, nil
}

func (h *heatwave) IngestTargets(targetFiles []string) (added []string, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	run := &ingestion{warned: make(map[string]bool)}
	var problems []error
	for i, targetFile := range targetFiles {
		target := mustAbsFilepath(targetFile)
		h.printer.Out(output.Verbose, "Reading target file %s (%d/%d)...\n", h.displayablePath(target), i+1, len(targetFiles))
		mdocPaths, readErr := h.parseTargetFile(target)
		if readErr != nil {
			problems = append(problems, readErr)
			continue
		}
		h.lib.AddTarget(target)
		if plot := h.findCtfbytsPlot(filepath.Base(target)); plot != "" {
			h.lib.SetAuxiliaryPath(target, plot)
		}
		for _, mdocPath := range mdocPaths {
			key, ingestErr := h.ingestMdoc(run, target, mdocPath)
			if ingestErr != nil {
				problems = append(problems, ingestErr)
				continue
			}
			if key != "" {
				added = append(added, key)
			}
		}
	}
	h.pruneEmptyTargets()
	h.reportIngestion(added)
	return added, errors.Join(problems...)
}

func (h *heatwave) IngestMdocs(mdocFiles []string) (added []string, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	wd := mustGetwd()
	inDir := ""
	for _, mdocFile := range mdocFiles {
		top := topLevelDir(mustAbsFilepath(mdocFile), wd)
		if inDir == "" {
			inDir = top
		} else if top != inDir {
			return nil, fault.Parsef(mdocFile, "metadata files are expected to share one top-level directory, e.g. %s", inDir)
		}
	}
	if inDir != "" && inDir != h.layout.InDir {
		h.logger.Debug("input directory derived from metadata files", "was", h.layout.InDir, "now", inDir)
		h.layout.InDir = inDir
	}

	h.lib.AddTarget(library.VirtualTarget)
	if plot := h.findCtfbytsPlot(""); plot != "" {
		h.lib.SetAuxiliaryPath(library.VirtualTarget, plot)
	}
	added, err = h.ingestBatch(library.VirtualTarget, mdocFiles)
	h.pruneEmptyTargets()
	h.reportIngestion(added)
	return
}

func (h *heatwave) ingestBatch(target string, mdocFiles []string) (added []string, err error) {
	run := &ingestion{warned: make(map[string]bool)}
	var problems []error
	for _, mdocFile := range mdocFiles {
		key, ingestErr := h.ingestMdoc(run, target, mdocFile)
		if ingestErr != nil {
			problems = append(problems, ingestErr)
			continue
		}
		if key != "" {
			added = append(added, key)
		}
	}
	return added, errors.Join(problems...)
}

// parseTargetFile finds the metadata files named on "tsfile" lines, missing ones are skipped with a warning.
func (h *heatwave) parseTargetFile(target string) (mdocPaths []string, err error) {
	content, err := os.ReadFile(target)
	if err != nil {
		return nil, fault.New(fault.Parse, target, "target file not readable", err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		if !strings.Contains(line, targetFileMarker) {
			continue
		}
		fields := strings.Split(line, "=")
		if len(fields) < 2 {
			return nil, fault.Parsef(target, "no value in line: %s", strings.TrimSpace(line))
		}
		stem := strings.ReplaceAll(strings.TrimSpace(fields[1]), ".mrc", "")
		dir := h.layout.SeriesDir(stem)
		if dir == "" {
			dir = filepath.Dir(target)
		}
		mdocPath := filepath.Join(dir, layout.MdocFileName(stem))
		if !fsutil.Exists(mdocPath) {
			h.logger.Warn("metadata file named in target file not found", "target", target, "mdoc", mdocPath)
			continue
		}
		mdocPaths = append(mdocPaths, mdocPath)
	}
	return
}

// findCtfbytsPlot picks the unique per-target CTF plot containing the target prefix, else the generic plot next to them.
func (h *heatwave) findCtfbytsPlot(targetBase string) string {
	pattern := h.layout.Resolve(h.layout.CtfbytsTargets)
	plots, _ := filepath.Glob(pattern)
	prefix := strings.TrimSuffix(targetBase, filepath.Ext(targetBase))
	var matches []string
	for _, plot := range plots {
		if strings.Contains(plot, prefix) {
			matches = append(matches, plot)
		}
	}
	if len(matches) == 1 {
		return matches[0]
	}
	generic := filepath.Join(filepath.Dir(pattern), h.layout.CtfbytsSeries)
	if fsutil.Exists(generic) {
		return generic
	}
	return ""
}

// ingestMdoc adds one tilt series unless its file name is already on record, in which case the key is empty.
func (h *heatwave) ingestMdoc(run *ingestion, target string, mdocPath string) (key string, err error) {
	absolute := mustAbsFilepath(mdocPath)
	if known, exists := h.lib.Lookup(filepath.Base(absolute)); exists {
		h.logger.Info("metadata file already on record, skipped", "mdoc", absolute, "known", known.MdocKey)
		return "", nil
	}
	record, err := h.readRecord(run, mdocPath)
	if err != nil {
		return "", err
	}
	if err := h.lib.InsertRecord(target, absolute, record); err != nil {
		return "", err
	}
	h.logger.Debug("tilt series ingested", "mdoc", absolute, "target", target, "micrographs", len(record.Tilts))
	return absolute, nil
}

// refreshMdoc replaces the record of a metadata file that gained blocks since it was read.
// Selections and the note carry over by tilt key, a file that did not grow is left alone.
func (h *heatwave) refreshMdoc(run *ingestion, known library.Location, mdocPath string) (grown bool, err error) {
	absolute := mustAbsFilepath(mdocPath)
	if known.MdocKey != absolute {
		h.logger.Info("metadata file name already on record, skipped", "mdoc", absolute, "known", known.MdocKey)
		return false, nil
	}
	previous, err := h.lib.GetRecord(known.MdocKey)
	if err != nil {
		return false, err
	}
	record, err := h.readRecord(run, absolute)
	if err != nil {
		return false, err
	}
	record.Header.MdocName = previous.Header.MdocName
	if len(record.Tilts) <= len(previous.Tilts) {
		return false, nil
	}
	for tiltKey, mic := range previous.Tilts {
		if grownMic, exists := record.Tilts[tiltKey]; exists {
			grownMic.Selected = mic.Selected
		}
	}
	record.Header.TextNote = previous.Header.TextNote
	record.RecomputeSelection()

	if _, _, err := h.lib.RemoveRecord(known.MdocKey); err != nil {
		return false, err
	}
	if err := h.lib.InsertRecord(known.Target, known.MdocKey, record); err != nil {
		return false, err
	}
	h.logger.Debug("tilt series grew", "mdoc", absolute, "was", len(previous.Tilts), "now", len(record.Tilts))
	return true, nil
}

// readRecord parses a metadata file and gathers everything known about its micrographs.
func (h *heatwave) readRecord(run *ingestion, mdocPath string) (*document.Record, error) {
	absolute := mustAbsFilepath(mdocPath)
	parsed, err := mdoc.ReadFile(absolute)
	if err != nil {
		return nil, err
	}
	meta, err := mdoc.Extract(parsed)
	if err != nil {
		return nil, fault.New(fault.Parse, absolute, "metadata not extractable", err)
	}
	if len(meta.Tilts) == 0 {
		return nil, fault.Parsef(absolute, "no tilt blocks (%s...)", mdoc.BlockOpener)
	}
	for _, tilt := range meta.Tilts {
		if tilt.SubFramePath == "" {
			return nil, fault.Parsef(absolute, "no SubFramePath in block %s", tilt.Key)
		}
	}

	location := absolute
	if resolved, resolveErr := filepath.EvalSymlinks(absolute); resolveErr == nil {
		location = resolved
	}
	header := document.Header{
		General:      meta.General,
		MdocName:     mdocPath,
		MdocLocation: location,
		NumTilts:     strconv.Itoa(len(meta.Tilts)),
		CentralSlice: fsutil.Latest(h.layout.CentralSlicePattern(absolute)),
		CtfBytsPlot:  fsutil.Latest(h.layout.SeriesCtfPlotPattern(absolute)),
		DosefitPlot:  fsutil.Latest(h.layout.DosefitPlotPattern(absolute)),
	}

	var summary *ctf.Summary
	if summaryPath := h.layout.CtfSummaryPath(absolute); fsutil.Exists(summaryPath) {
		if summary, err = ctf.ReadSummary(summaryPath); err != nil {
			return nil, err
		}
		header.CtfSummary = summaryPath
	} else {
		h.warnOnce(run, "CtfSummary", "CTF summary not found", summaryPath)
	}

	exposures, err := h.cumulativeExposures(run, absolute)
	if err != nil {
		return nil, err
	}

	tilts := make(map[string]*document.Micrograph, len(meta.Tilts))
	for rank, tilt := range byAngle(meta.Tilts) {
		mic := &document.Micrograph{
			ZValue:       tilt.ZValue,
			TiltAngle:    tilt.TiltAngle,
			DoseRate:     tilt.DoseRate,
			SubFramePath: tilt.SubFramePath,
			DateTime:     tilt.DateTime,
			CumExposure:  document.Unknown,
			CumDose:      document.Unknown,
		}
		artifacts := h.layout.Micrograph(absolute, mic.MovieBase(), rank)
		mic.MoviePath = h.probe(run, "MoviePath", "micrograph movie", artifacts.MoviePath)
		mic.McorrMic = h.probe(run, "McorrMic", "motion-corrected micrograph", artifacts.McorrMic)
		mic.TiffFile = h.probe(run, "TiffFile", "compressed TIFF", artifacts.TiffFile)
		mic.MicThumbnail = h.probe(run, "MicThumbnail", "micrograph thumbnail", artifacts.MicThumbnail)
		mic.CtfThumbnail = h.probe(run, "CtfThumbnail", "power-spectrum image", artifacts.CtfThumbnail)
		mic.DenoiseMic = h.probe(run, "DenoiseMic", "denoised micrograph", artifacts.DenoiseMic)

		if summary != nil {
			fit, found, lookupErr := summary.Lookup(mic.MovieStem())
			if lookupErr != nil {
				return nil, lookupErr
			}
			if found {
				defocus, resolution := fit.Defocus, fit.Resolution
				mic.CtfFind4, mic.MaxRes = &defocus, &resolution
			}
		}
		if exposure, found := exposures[tilt.SubFramePath]; found {
			mic.CumExposure, mic.CumDose = exposure.Time, exposure.Dose
		}
		tilts[tilt.Key] = mic
	}

	return document.NewRecord(header, tilts), nil
}

// cumulativeExposures reads the original metadata file, if there is none all values stay unknown.
func (h *heatwave) cumulativeExposures(run *ingestion, mdocKey string) (map[string]dose.Exposure, error) {
	orig := h.layout.OrigMdocPath(mdocKey)
	if !fsutil.Exists(orig) {
		h.warnOnce(run, "OrigMdoc", "original metadata file not found, exposure and dose unknown", orig)
		return nil, nil
	}
	if run.perImage == nil {
		perImage, err := dose.PerImage(h.layout)
		if err != nil {
			return nil, err
		}
		if perImage == dose.Unknown {
			h.logger.Warn("dose per image unknown, only exposure is accumulated")
		}
		run.perImage = &perImage
	}
	return dose.Cumulative(orig, *run.perImage)
}

// probe yields the path if the artifact exists, otherwise it warns once per kind and yields an empty path.
func (h *heatwave) probe(run *ingestion, kind string, description string, path string) string {
	if fsutil.Exists(path) {
		return path
	}
	h.warnOnce(run, kind, description+" not found", path)
	return ""
}

func (h *heatwave) warnOnce(run *ingestion, kind string, message string, path string) {
	if run.warned[kind] {
		h.logger.Debug(message, "path", path)
		return
	}
	run.warned[kind] = true
	h.logger.Warn(message, "path", path)
}

func (h *heatwave) pruneEmptyTargets() {
	for _, name := range h.lib.PruneEmptyTargets() {
		if name == library.VirtualTarget {
			h.logger.Info("metadata files already accounted for, nothing new")
		} else {
			h.logger.Info("removing target without tilt series", "target", name)
		}
	}
}

func (h *heatwave) reportIngestion(added []string) {
	h.printer.Out(output.Normal, "%d new tilt series ingested\n", len(added))
	for _, key := range added {
		h.printer.Out(output.Verbose, "  + %s\n", h.displayablePath(key))
	}
}

// byAngle orders the tilts by angle, ties keep block order.
func byAngle(tilts []mdoc.Tilt) []mdoc.Tilt {
	sorted := append([]mdoc.Tilt(nil), tilts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Angle() < sorted[j].Angle()
	})
	return sorted
}
