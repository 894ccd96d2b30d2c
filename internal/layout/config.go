package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	InDirPlaceholder = "$IN_DIR"
	StemPlaceholder  = "$MDOC_STEM"
)

// Config describes where the processing pipeline puts its artifacts.
// Patterns may refer to the input directory as $IN_DIR, the tilt-series directory pattern also to the series stem as $MDOC_STEM.
type Config struct {
	Document       string  `yaml:"json"`
	InDir          string  `yaml:"in_dir"`
	Settings       string  `yaml:"settings"`
	FrameFile      string  `yaml:"frame_file"`
	Dose           float64 `yaml:"dose"` //dose per image, 0 means derive from the frames file
	MovieDir       string  `yaml:"movie_dir"`
	MicthumbDir    string  `yaml:"micthumb_dir"`
	TifDir         string  `yaml:"tif_dir"`
	MicDir         string  `yaml:"mic_dir"`
	MicPattern     string  `yaml:"mic_pattern"`
	MicthumbSuffix string  `yaml:"micthumb_suffix"`
	CtfthumbSuffix string  `yaml:"ctfthumb_suffix"`
	CtfSummary     string  `yaml:"ctf_summary"`
	CtfbytsTargets string  `yaml:"ctfbyts_tgts"`
	CtfbytsSeries  string  `yaml:"ctfbyts_1ts"`
	DenoiseDir     string  `yaml:"denoise_dir"`
	TsDir          string  `yaml:"ts_dir"`
	OrigMdocSuffix string  `yaml:"orig_mdoc_suffix"`
	SliceJpg       string  `yaml:"slice_jpg"`
	DosefitPlot    string  `yaml:"dosefit_plot"`
	StackSuffix    string  `yaml:"stack_suffix"`
	ThumbFormat    string  `yaml:"thumb_format"`
	IncinerateDir  string  `yaml:"incinerate_dir"`
	ImodBin        string  `yaml:"imod_bin"`
}

func DefaultConfig() Config {
	return Config{
		Document:       "heatwave.json",
		InDir:          "SNARTomo",
		Settings:       InDirPlaceholder + "/settings.txt",
		FrameFile:      "motioncor-frame.txt",
		MovieDir:       "frames",
		MicthumbDir:    "Thumbnails",
		TifDir:         InDirPlaceholder + "/1-Compressed",
		MicDir:         InDirPlaceholder + "/2-MotionCor2",
		MicPattern:     "_mic.mrc",
		MicthumbSuffix: "_newstack",
		CtfthumbSuffix: "_ctfstack_center",
		CtfSummary:     "SUMMARY_CTF.txt",
		CtfbytsTargets: InDirPlaceholder + "/Images/ctfbyts*.png",
		CtfbytsSeries:  "ctfbyts.png",
		DenoiseDir:     InDirPlaceholder + "/4-Denoise",
		TsDir:          InDirPlaceholder + "/5-Tomo/" + StemPlaceholder,
		OrigMdocSuffix: ".mrc.mdoc.orig",
		SliceJpg:       "_slice_norm.jpg",
		DosefitPlot:    "*_dose_fit.png",
		StackSuffix:    "_restack",
		ThumbFormat:    "jpg",
		IncinerateDir:  InDirPlaceholder + "/INCINERATE",
	}
}

// LoadFile overlays the values present in the YAML file onto the given configuration.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read the config file %w", err)
	}
	loaded := base
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return base, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return loaded, nil
}

// WriteFile stores the configuration as YAML, creating the directory if needed.
func WriteFile(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
