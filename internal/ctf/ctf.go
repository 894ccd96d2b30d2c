package ctf

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/n2code/heatwave/internal/fault"
)

const (
	defocus1Column   = 2
	defocus2Column   = 3
	resolutionColumn = 7
)

// Fit is the CTF estimate of one micrograph.
type Fit struct {
	Defocus    float64 //mean of both defocus values, sign flipped
	Resolution float64 //resolution up to which the fit is reliable
}

// Summary holds the lines of a CTF summary file, which is appended to on every estimation run.
type Summary struct {
	path  string
	lines []string
}

// ReadSummary loads the summary file completely.
func ReadSummary(path string) (*Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fault.New(fault.Parse, path, "CTF summary not readable", err)
	}
	defer file.Close()

	summary := &Summary{path: path}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		summary.lines = append(summary.lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fault.New(fault.Parse, path, "CTF summary not readable", err)
	}
	return summary, nil
}

// Lookup finds the latest estimate mentioning the movie stem.
func (s *Summary) Lookup(movieStem string) (fit Fit, found bool, err error) {
	for i := len(s.lines) - 1; i >= 0; i-- {
		if !strings.Contains(s.lines[i], movieStem) {
			continue
		}
		fit, err = parseLine(s.lines[i])
		if err != nil {
			return Fit{}, false, fault.New(fault.Parse, s.path, "bad estimate for "+movieStem, err)
		}
		return fit, true, nil
	}
	return Fit{}, false, nil
}

func parseLine(line string) (Fit, error) {
	fields := strings.Fields(line)
	if len(fields) <= resolutionColumn {
		return Fit{}, fault.Parsef(line, "expected at least %d columns, found %d", resolutionColumn+1, len(fields))
	}
	var values [3]float64
	for i, column := range []int{defocus1Column, defocus2Column, resolutionColumn} {
		value, err := strconv.ParseFloat(fields[column], 64)
		if err != nil {
			return Fit{}, err
		}
		values[i] = value
	}
	return Fit{Defocus: -(values[0] + values[1]) / 2, Resolution: values[2]}, nil
}
