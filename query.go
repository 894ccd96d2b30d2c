package heatwave

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/n2code/heatwave/internal/archive"
	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/library"
	"github.com/n2code/heatwave/internal/output"
)

func (h *heatwave) PrintTree(onlyDeselected bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	tree := output.NewVisualTree(h.displayablePath(h.docPath))
	h.lib.VisitRecords(func(location library.Location, record *document.Record) {
		if onlyDeselected && record.Header.Selected == document.AllSelected {
			return
		}
		if !tree.HasBranch(location.Target) {
			tree.AddBranch("", location.Target, h.targetLabel(location.Target))
		}
		tree.AddBranch(location.Target, location.MdocKey, h.mdocLabel(location.MdocKey, record))
		for _, tiltKey := range record.TiltKeysByAngle() {
			mic := record.Tilts[tiltKey]
			label := fmt.Sprintf("%s %6s° %s  defocus %s  fit %s",
				tiltKey, mic.TiltAngle, mic.MovieBase(), output.Measurement(mic.CtfFind4, "%.2f"), output.Measurement(mic.MaxRes, "%.1fÅ"))
			tree.AddLeaf(location.MdocKey, h.printer.Colored(label, library.ColorForMicrograph(mic)))
		}
	})
	h.printer.Out(output.Required, "%s", tree.Render())
}

func (h *heatwave) targetLabel(target string) string {
	label := target
	if target != library.VirtualTarget {
		label = h.displayablePath(target)
	}
	if plot, exists := h.lib.AuxiliaryPath(target); exists {
		label += h.printer.Colored(" (CTF plot "+h.displayablePath(plot)+")", output.Dim)
	}
	return label
}

func (h *heatwave) mdocLabel(mdocKey string, record *document.Record) string {
	kept := 0
	for _, mic := range record.Tilts {
		if mic.Selected {
			kept++
		}
	}
	label := fmt.Sprintf("%s [%s kept]", filepath.Base(mdocKey), output.Ratio(kept, len(record.Tilts)))
	if record.Header.TextNote != "" {
		label += fmt.Sprintf(" %q", record.Header.TextNote)
	}
	return h.printer.Colored(label, library.ColorForSelection(record.Header.Selected))
}

func (h *heatwave) PrintSummary() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	summary := h.lib.Summary()
	h.printer.Out(output.Required, "%s\n", summary)

	kinds := make([]string, 0, len(summary.Artifacts))
	for kind := range summary.Artifacts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		h.printer.Out(output.Normal, "  %-14s %s found\n", kind, output.Ratio(summary.Artifacts[kind], summary.Micrographs))
	}

	journal, err := archive.OpenJournal(filepath.Join(h.layout.ArchiveRoot(), archive.JournalFileName))
	if err != nil {
		h.printer.Out(output.Error, "archive journal unreadable: %s\n", err)
		return
	}
	if pending := journal.Pending(); pending > 0 {
		h.printer.Out(output.Normal, "%d archived %s can be restored\n", pending, output.Plural(pending, "file", "files"))
	}
}

func (h *heatwave) PrintQuery(jsonPath string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	results, err := h.lib.Query(jsonPath)
	if err != nil {
		return err
	}
	for _, result := range results {
		blob, err := json.MarshalIndent(result, "", "   ")
		if err != nil {
			return err
		}
		h.printer.Out(output.Required, "%s\n", blob)
	}
	h.printer.Out(output.Normal, "%d %s\n", len(results), output.Plural(len(results), "match", "matches"))
	return nil
}
