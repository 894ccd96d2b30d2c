package heatwave

import (
	"path/filepath"

	"github.com/n2code/heatwave/internal/fault"
	"github.com/n2code/heatwave/internal/library"
	"github.com/n2code/heatwave/internal/output"
)

// resolveMdoc accepts a metadata file either by its file name or by its path.
func (h *heatwave) resolveMdoc(mdoc string) (string, error) {
	location, found := h.lib.Lookup(filepath.Base(mdoc))
	if !found {
		return "", fault.Consistencyf(mdoc, "metadata file not on record")
	}
	if mdoc != filepath.Base(mdoc) && mustAbsFilepath(mdoc) != location.MdocKey {
		return "", fault.Consistencyf(mdoc, "metadata file on record is %s", location.MdocKey)
	}
	return location.MdocKey, nil
}

func (h *heatwave) SelectMicrograph(mdoc string, micrograph string, selected bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	mdocKey, err := h.resolveMdoc(mdoc)
	if err != nil {
		return err
	}
	record, err := h.lib.GetRecord(mdocKey)
	if err != nil {
		return err
	}
	tiltKey := micrograph
	if _, isTiltKey := record.Tilts[micrograph]; !isTiltKey {
		var found bool
		if tiltKey, found = record.TiltKeyByMovie(micrograph); !found {
			return fault.Consistencyf(mdocKey, "no micrograph %s", micrograph)
		}
	}
	aggregate, err := h.lib.SetMicrographSelection(mdocKey, tiltKey, selected)
	if err != nil {
		return err
	}
	h.printer.Out(output.Normal, "%s %s, tilt series now has %s selected\n", tiltKey, keptOrDiscarded(selected), aggregate)
	return nil
}

func (h *heatwave) SelectMdoc(mdoc string, selected bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	mdocKey, err := h.resolveMdoc(mdoc)
	if err != nil {
		return err
	}
	if err := h.lib.SetMdocSelection(mdocKey, selected); err != nil {
		return err
	}
	h.printer.Out(output.Normal, "all micrographs of %s %s\n", h.displayablePath(mdocKey), keptOrDiscarded(selected))
	return nil
}

func (h *heatwave) Reconcile(snapshot library.Snapshot) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	changed, err := h.lib.Reconcile(snapshot)
	h.printer.Out(output.Normal, "%d %s changed\n", changed, output.Plural(changed, "selection", "selections"))
	return changed, err
}

func (h *heatwave) Snapshot() library.Snapshot {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return library.TakeSnapshot(h.lib)
}

func (h *heatwave) SetNote(mdoc string, text string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	mdocKey, err := h.resolveMdoc(mdoc)
	if err != nil {
		return err
	}
	return h.lib.SetNote(mdocKey, text)
}

func keptOrDiscarded(selected bool) string {
	if selected {
		return "kept"
	}
	return "discarded"
}
