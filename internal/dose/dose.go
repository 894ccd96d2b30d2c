package dose

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/n2code/heatwave/internal/fault"
	"github.com/n2code/heatwave/internal/layout"
	"github.com/n2code/heatwave/internal/mdoc"
)

// Unknown is reported for any value that could not be determined.
const Unknown = -1

const frameFileOption = "--frame_file"

// Exposure is the accumulated exposure time and electron dose up to and including one micrograph.
type Exposure struct {
	Time float64
	Dose float64 //Unknown if the dose per image is unknown
}

// PerImage determines the electron dose of one micrograph.
// A configured dose wins, else the frames file named in the configuration or in the pipeline settings is read.
// Without any frames file the dose is Unknown, which is not an error.
func PerImage(config layout.Config) (float64, error) {
	if config.Dose > 0 {
		return config.Dose, nil
	}
	framesFile := config.FrameFile
	if !exists(framesFile) {
		var err error
		if framesFile, err = frameFileFromSettings(config.Resolve(config.Settings)); err != nil {
			return Unknown, err
		}
	}
	if framesFile == "" || !exists(framesFile) {
		return Unknown, nil
	}
	return readFramesFile(framesFile)
}

func frameFileFromSettings(settingsPath string) (string, error) {
	file, err := os.Open(settingsPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fault.New(fault.Parse, settingsPath, "settings not readable", err)
	}
	defer file.Close()

	found := ""
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, frameFileOption) {
			continue
		}
		fields := strings.Split(strings.TrimSpace(line), " ")
		if len(fields) < 2 {
			return "", fault.Parsef(settingsPath, "%s without a value", frameFileOption)
		}
		found = strings.ReplaceAll(fields[1], "\t", "") //last mention wins
	}
	if err := scanner.Err(); err != nil {
		return "", fault.New(fault.Parse, settingsPath, "settings not readable", err)
	}
	return found, nil
}

// readFramesFile computes frames times dose per frame from the first line "<frames> <grouping> <dose per frame>".
func readFramesFile(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return Unknown, fault.New(fault.Parse, path, "frames file not readable", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return Unknown, fault.Parsef(path, "frames file is empty")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) != 3 {
		return Unknown, fault.Parsef(path, "expected frame count, grouping and dose per frame, found %d values", len(fields))
	}
	frames, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Unknown, fault.New(fault.Parse, path, "bad frame count", err)
	}
	perFrame, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Unknown, fault.New(fault.Parse, path, "bad dose per frame", err)
	}
	return frames * perFrame, nil
}

// Cumulative accumulates exposure and dose over the blocks of the unmodified metadata file in acquisition order.
// The result is keyed by the frame path exactly as written in the file.
func Cumulative(origMdocPath string, perImage float64) (map[string]Exposure, error) {
	file, err := mdoc.ReadFile(origMdocPath)
	if err != nil {
		return nil, err
	}
	accumulated := make(map[string]Exposure, len(file.Blocks))
	var time, dose float64
	for n, block := range file.Blocks {
		framePath, exposureTime := "", ""
		for _, line := range block {
			fields := strings.Fields(line)
			switch {
			case strings.Contains(line, "SubFramePath") && len(fields) > 2:
				framePath = fields[2]
			case strings.Contains(line, "ExposureTime") && len(fields) > 2:
				exposureTime = fields[2]
			}
		}
		seconds, err := strconv.ParseFloat(exposureTime, 64)
		if err != nil {
			return nil, fault.New(fault.Parse, origMdocPath, "block "+strconv.Itoa(n)+" lacks a valid exposure time", err)
		}
		time += seconds
		entry := Exposure{Time: time, Dose: Unknown}
		if perImage != Unknown {
			dose += perImage
			entry.Dose = dose
		}
		accumulated[framePath] = entry
	}
	return accumulated, nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
