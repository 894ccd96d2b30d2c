package ctf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n2code/heatwave/internal/fault"
)

const summaryContent = `# micrograph  n  df1  df2  astig  phase  ccc  res
ts_01_001_0.0_mic.mrc 1 20000 22000 45.0 0.0 0.08 7.5
ts_01_002_3.0_mic.mrc 1 25000 25000 12.0 0.0 0.05 9.0
ts_01_001_0.0_mic.mrc 1 30000 32000 40.0 0.0 0.09 5.5
ts_01_003_-3.0_mic.mrc 1 broken
`

func TestLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SUMMARY_CTF.txt")
	require.NoError(t, os.WriteFile(path, []byte(summaryContent), 0644))
	summary, err := ReadSummary(path)
	require.NoError(t, err)

	tests := []struct {
		name      string
		stem      string
		want      Fit
		wantFound bool
		wantErr   bool
	}{
		{"latest estimate wins", "ts_01_001_0.0", Fit{Defocus: -31000, Resolution: 5.5}, true, false},
		{"single estimate", "ts_01_002_3.0", Fit{Defocus: -25000, Resolution: 9}, true, false},
		{"not covered", "ts_01_009_12.0", Fit{}, false, false},
		{"too few columns", "ts_01_003_-3.0", Fit{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fit, found, err := summary.Lookup(tt.stem)
			if tt.wantErr {
				assert.True(t, fault.Is(err, fault.Parse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.want, fit)
		})
	}
}

func TestMissingSummary(t *testing.T) {
	_, err := ReadSummary(filepath.Join(t.TempDir(), "SUMMARY_CTF.txt"))
	assert.True(t, fault.Is(err, fault.Parse))
}
