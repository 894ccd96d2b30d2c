package heatwave

import (
	"context"
	"errors"

	"github.com/n2code/heatwave/internal/archive"
	"github.com/n2code/heatwave/internal/fault"
	"github.com/n2code/heatwave/internal/output"
	"github.com/n2code/heatwave/internal/restack"
)

func (h *heatwave) IncinerationCandidates() ([]string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	manager, err := archive.NewManager(h.layout, h.lib, h.logger)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, location := range manager.Candidates() {
		keys = append(keys, location.MdocKey)
	}
	return keys, nil
}

func (h *heatwave) Incinerate() (report archive.IncinerationReport, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	manager, err := archive.NewManager(h.layout, h.lib, h.logger)
	if err != nil {
		return
	}
	report, err = manager.Incinerate()
	if len(report.Incinerated) > 0 {
		err = errors.Join(err, h.persist())
	}
	h.printer.Out(output.Normal, "%d tilt series incinerated, %d %s moved to %s\n",
		len(report.Incinerated),
		report.Moves, output.Plural(report.Moves, "file", "files"), h.displayablePath(h.layout.ArchiveRoot()))
	if len(report.Missing) > 0 {
		h.printer.Out(output.Normal, "%d %s on record did not exist\n", len(report.Missing), output.Plural(len(report.Missing), "artifact", "artifacts"))
	}
	if err != nil {
		err = newCommandError("incineration incomplete", err)
	}
	return
}

func (h *heatwave) Restore() (report archive.RestorationReport, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	manager, err := archive.NewManager(h.layout, h.lib, h.logger)
	if err != nil {
		return
	}
	report, err = manager.Restore()
	if len(report.Restored) > 0 {
		err = errors.Join(err, h.persist())
	}
	h.printer.Out(output.Normal, "%d tilt series restored, %d %s moved back\n",
		len(report.Restored),
		report.Moves, output.Plural(report.Moves, "file", "files"))
	if report.Leftover > 0 {
		h.printer.Out(output.Normal, "%d %s left in %s\n", report.Leftover, output.Plural(report.Leftover, "file", "files"), h.displayablePath(h.layout.ArchiveRoot()))
	}
	if err != nil {
		err = newCommandError("restore incomplete", err)
	}
	return
}

func (h *heatwave) RestackCandidates() []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var keys []string
	for _, location := range restack.NewEngine(h.layout, h.lib, h.logger).Candidates() {
		keys = append(keys, location.MdocKey)
	}
	return keys
}

func (h *heatwave) Restack(ctx context.Context, mdocs ...string) (results []restack.Result, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	engine := restack.NewEngine(h.layout, h.lib, h.logger)
	if len(mdocs) == 0 {
		results, err = engine.RestackAll(ctx)
	} else {
		var problems []error
		for _, mdoc := range mdocs {
			result, restackErr := h.restackOne(ctx, engine, mdoc)
			if restackErr != nil {
				problems = append(problems, restackErr)
				if fault.Is(restackErr, fault.ExternalToolMissing) {
					break
				}
				continue
			}
			results = append(results, result)
		}
		err = errors.Join(problems...)
	}

	for _, result := range results {
		h.printer.Out(output.Normal, "%s: %d kept, %d dropped, stack %s\n",
			h.displayablePath(result.MdocKey), result.Kept, result.Dropped, h.displayablePath(result.Stack))
		h.printer.Out(output.Verbose, "  backup of metadata file: %s\n", h.displayablePath(result.MdocBackup))
		if result.StackBak != "" {
			h.printer.Out(output.Verbose, "  backup of stack: %s\n", h.displayablePath(result.StackBak))
		}
		h.printer.Out(output.Verbose, "  tool output: %s\n", h.displayablePath(result.RunLog))
	}
	if len(results) > 0 {
		err = errors.Join(err, h.persist())
	}
	if err != nil {
		err = newCommandError("restack incomplete", err)
	}
	return
}

func (h *heatwave) restackOne(ctx context.Context, engine *restack.Engine, mdoc string) (restack.Result, error) {
	mdocKey, err := h.resolveMdoc(mdoc)
	if err != nil {
		return restack.Result{}, err
	}
	return engine.Restack(ctx, mdocKey)
}

func (h *heatwave) PreviewRestack(mdoc string) (string, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	mdocKey, err := h.resolveMdoc(mdoc)
	if err != nil {
		return "", err
	}
	return restack.NewEngine(h.layout, h.lib, h.logger).Preview(mdocKey)
}
