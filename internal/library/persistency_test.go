package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n2code/heatwave/internal/document"
	"github.com/n2code/heatwave/internal/fault"
)

func TestLibrarySaveAndReload(t *testing.T) {
	dir := t.TempDir()
	documentPath := filepath.Join(dir, "heatwave.json")

	lib := MakeRuntimeLibrary()
	first, second := "/in/5-Tomo/ts_01/ts_01.mrc.mdoc", "/in/5-Tomo/ts_02/ts_02.mrc.mdoc"
	require.NoError(t, lib.InsertRecord("/in/targets/t1.txt", first, makeRecord(first, 4)))
	require.NoError(t, lib.InsertRecord("/in/targets/t1.txt", second, makeRecord(second, 2)))
	lib.SetAuxiliaryPath("/in/targets/t1.txt", "/in/Images/ctfbyts_t1.png")
	_, err := lib.SetMicrographSelection(first, "tilt_no_3", false)
	require.NoError(t, err)
	require.NoError(t, lib.SetNote(second, "broken grid square"))
	defocus := -3.25
	record, _ := lib.GetRecord(first)
	record.Tilts["tilt_no_1"].CtfFind4 = &defocus

	require.NoError(t, lib.SaveToLocalFile(documentPath))
	_, err = os.Stat(documentPath + workInProgressFileSuffix)
	assert.ErrorIs(t, err, os.ErrNotExist, "temporary file renamed")

	loaded := MakeRuntimeLibrary()
	require.NoError(t, loaded.LoadFromLocalFile(documentPath))
	assert.Equal(t, lib, loaded)

	before := TakeSnapshot(loaded)
	loaded.VisitRecords(func(_ Location, record *document.Record) {
		selected := record.Header.Selected
		assert.Equal(t, selected, record.RecomputeSelection(), "recompute after load is a no-op")
	})
	assert.Equal(t, before, TakeSnapshot(loaded))
}

func TestLoadRecomputesAggregates(t *testing.T) {
	dir := t.TempDir()
	documentPath := filepath.Join(dir, "heatwave.json")
	stale := `{
   "All tilt series": {
      "/in/ts_01/ts_01.mrc.mdoc": [
         {"Mdoc_name": "/in/ts_01/ts_01.mrc.mdoc", "MdocSelected": 2, "Voltage": "300"},
         {
            "tilt_no_1": {"ZValue": 0, "SubFramePath": "a.eer", "MicSelected": false},
            "tilt_no_2": {"ZValue": 1, "SubFramePath": "b.eer"}
         }
      ]
   }
}`
	require.NoError(t, os.WriteFile(documentPath, []byte(stale), 0644))

	lib := MakeRuntimeLibrary()
	require.NoError(t, lib.LoadFromLocalFile(documentPath))
	record, err := lib.GetRecord("/in/ts_01/ts_01.mrc.mdoc")
	require.NoError(t, err)
	assert.Equal(t, document.SomeSelected, record.Header.Selected)
	assert.True(t, record.Tilts["tilt_no_2"].Selected, "missing selection defaults to kept")
	assert.Equal(t, "300", record.Header.General["Voltage"])
}

func TestLoadRejectsBrokenDocuments(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{"},
		{"auxiliary not a path", `{"t": {"CtfBytsPlot": [1, 2]}}`},
		{"record not a pair", `{"t": {"/a/ts/ts.mrc.mdoc": [{}]}}`},
		{"duplicate basename", `{"t": {"/a/ts/ts.mrc.mdoc": [{}, {}]}, "u": {"/b/ts/ts.mrc.mdoc": [{}, {}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			err := MakeRuntimeLibrary().LoadFromLocalFile(path)
			assert.True(t, fault.Is(err, fault.Parse), "got %v", err)
		})
	}
}

func TestLoadRefusesLeftoverWorkInProgress(t *testing.T) {
	dir := t.TempDir()
	documentPath := filepath.Join(dir, "heatwave.json")
	require.NoError(t, MakeRuntimeLibrary().SaveToLocalFile(documentPath))
	require.NoError(t, os.WriteFile(documentPath+workInProgressFileSuffix, []byte("{}"), 0644))

	err := MakeRuntimeLibrary().LoadFromLocalFile(documentPath)
	assert.True(t, fault.Is(err, fault.Consistency))
}
