package heatwave

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/n2code/heatwave/internal"
	"github.com/n2code/heatwave/internal/output"
)

const inDirScheme = "in:" + string(filepath.Separator) + string(filepath.Separator)

func (h *heatwave) displayablePath(absolutePath string) string {
	if h.layout.InDir == "" || !filepath.IsAbs(absolutePath) {
		return absolutePath
	}
	pleasant := pleasantPath(filepath.Clean(absolutePath), h.layout.InDir, mustGetwd(), false)
	if strings.HasPrefix(pleasant, inDirScheme) {
		pleasant = strings.Replace(pleasant, inDirScheme, h.printer.Colored(inDirScheme, output.Dim), 1)
	}
	return pleasant
}

const dot string = "."
const dirSeparator = string(filepath.Separator)
const dotDirSeparator = dot + dirSeparator
const doubleDot = dot + dot
const doubleDotDirSeparator = doubleDot + dirSeparator

func isChildOf(child string, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	internal.AssertNoError(err, "paths should both be nice and not of mixed nature")
	return !(rel == dot || rel == doubleDot || strings.HasPrefix(rel, doubleDotDirSeparator))
}

// pleasantPath turns an absolute path into something easily understandable from the current context.
// If the working directory is inside the input directory a relative path is emitted, with leading "./" to stress relativity (opt-out possible).
// If the current location is above the input directory, paths inside of it are anchored and the input directory is abbreviated.
// All other paths are reflected unchanged.
func pleasantPath(absolute string, inDir string, wd string, omitDotSlash bool) string {
	if wdAboveInDir := isChildOf(inDir, wd); wdAboveInDir {
		if !isChildOf(absolute, inDir) {
			return absolute
		}
		anchored, _ := filepath.Rel(inDir, absolute) //error impossible because both are rooted
		return inDirScheme + anchored
	}
	if wdInsideInDir := wd == inDir || isChildOf(wd, inDir); !wdInsideInDir {
		return absolute
	}

	prefix := ""
	relative, _ := filepath.Rel(wd, absolute) //error impossible because both are rooted
	if !omitDotSlash && !strings.HasPrefix(relative, doubleDotDirSeparator) {
		prefix = dotDirSeparator
	}
	return prefix + relative
}

// topLevelDir yields the first directory of the path below the working directory, or below the filesystem root if the path is elsewhere.
func topLevelDir(absolute string, wd string) string {
	base := filepath.VolumeName(absolute) + dirSeparator
	if isChildOf(absolute, wd) {
		base = wd
	}
	rel, err := filepath.Rel(base, absolute)
	internal.AssertNoError(err, "both paths are rooted")
	return filepath.Join(base, strings.SplitN(rel, dirSeparator, 2)[0])
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return wd
}

// mustAbsFilepath calls filepath.Abs and asserts that it is successful
func mustAbsFilepath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		panic(err)
	}
	return abs
}
