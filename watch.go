package heatwave

import (
	"context"
	"path/filepath"
	"time"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/library"
	"github.com/n2code/heatwave/internal/output"
	"github.com/n2code/heatwave/internal/watch"
)

// Watch ingests new metadata files into the virtual target, unless the document holds exactly one real target which receives them.
// A known metadata file that gains blocks replaces its record, existing selections are kept.
func (h *heatwave) Watch(ctx context.Context, settle time.Duration) error {
	h.mutex.Lock()
	root := h.watchRoot()
	var known []string
	h.lib.VisitRecords(func(location library.Location, _ *document.Record) {
		known = append(known, location.MdocKey)
	})
	h.mutex.Unlock()

	watcher, err := watch.New(root, h.ingestAppeared, settle, h.logger)
	if err != nil {
		return err
	}
	watcher.MarkSeen(known...)
	h.logger.Info("watching for new metadata files", "root", root)
	return watcher.Run(ctx)
}

// watchRoot is the parent of all tilt-series directories, the input directory if there is no such layout.
func (h *heatwave) watchRoot() string {
	if seriesDir := h.layout.SeriesDir(layout.StemPlaceholder); seriesDir != "" {
		return filepath.Dir(seriesDir)
	}
	return h.layout.InDir
}

// ingestAppeared takes new metadata files and refreshes known ones that grew, files that cannot be read yet are handed back.
func (h *heatwave) ingestAppeared(mdocPaths []string) (failed []string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	target := library.VirtualTarget
	if targets := h.lib.Targets(); len(targets) == 1 {
		target = targets[0]
	}
	run := &ingestion{warned: make(map[string]bool)}
	var added, grown []string
	for _, mdocPath := range mdocPaths {
		var err error
		if known, exists := h.lib.Lookup(filepath.Base(mdocPath)); exists {
			var refreshed bool
			if refreshed, err = h.refreshMdoc(run, known, mdocPath); refreshed {
				grown = append(grown, known.MdocKey)
			}
		} else {
			var key string
			if key, err = h.ingestMdoc(run, target, mdocPath); key != "" {
				added = append(added, key)
			}
		}
		if err != nil {
			h.logger.Warn("metadata file not ingested, waiting for it to change", "mdoc", mdocPath, "error", err)
			failed = append(failed, mdocPath)
		}
	}

	if len(added)+len(grown) == 0 {
		h.pruneEmptyTargets()
		return
	}
	if len(added) > 0 {
		h.reportIngestion(added)
	}
	for _, key := range grown {
		h.printer.Out(output.Normal, "%s gained micrographs\n", h.displayablePath(key))
	}
	if err := h.persist(); err != nil {
		h.logger.Error("document not written", "error", err)
	}
	return
}
