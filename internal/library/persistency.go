package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
)

const workInProgressFileSuffix = ".wip"
const jsonIndent = "   "

func (lib *library) SaveToLocalFile(path string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("saving document failed: %w", err)
		}
	}()

	tempPath := path + workInProgressFileSuffix

	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil { //plausible failure
		return
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", jsonIndent)
	if err = encoder.Encode(lib); err != nil {
		file.Close()
		return
	}
	if err = file.Close(); err != nil {
		return
	}

	err = os.Rename(tempPath, path)
	if err != nil {
		return fmt.Errorf("replacing document (%s) with temporary working copy (%s) failed: %w", path, tempPath, err)
	}
	return nil
}

// LoadFromLocalFile replaces the content with the persisted document.
// Missing micrograph selections count as kept and every aggregate is recomputed.
func (lib *library) LoadFromLocalFile(path string) error {
	leftoverWorkInProgressFile := path + workInProgressFileSuffix
	if _, err := os.Stat(leftoverWorkInProgressFile); !errors.Is(err, os.ErrNotExist) {
		return fault.Consistencyf(leftoverWorkInProgressFile, "old %s-file exists, manual intervention necessary", workInProgressFileSuffix)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return fault.New(fault.Parse, path, "document not readable", err)
	}
	loaded := &library{}
	if err := json.Unmarshal(blob, loaded); err != nil {
		return fault.New(fault.Parse, path, "document not loadable", err)
	}
	loaded.VisitRecords(func(_ Location, record *document.Record) {
		record.RecomputeSelection()
	})
	*lib = *loaded
	return nil
}
