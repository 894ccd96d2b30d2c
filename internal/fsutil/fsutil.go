package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// Exists reports whether anything is present at the path (broken symlinks included).
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// BackupName yields the first vacant name of the form <path>_<N>, counting from 0.
func BackupName(path string) string {
	for n := 0; ; n++ {
		candidate := path + "_" + strconv.Itoa(n)
		if !Exists(candidate) {
			return candidate
		}
	}
}

// Backup moves an existing file out of the way and returns its new name, empty if there was nothing to back up.
func Backup(path string) (string, error) {
	if !Exists(path) {
		return "", nil
	}
	backup := BackupName(path)
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("backup of %s failed: %w", path, err)
	}
	return backup, nil
}

// WriteFile writes the data after backing up any existing file.
func WriteFile(path string, data []byte) (backup string, err error) {
	backup, err = Backup(path)
	if err != nil {
		return
	}
	err = os.WriteFile(path, data, 0644)
	return
}

// WriteLines writes one line per item after backing up any existing file.
func WriteLines(path string, lines []string) (backup string, err error) {
	var content strings.Builder
	for _, line := range lines {
		content.WriteString(line)
		content.WriteByte('\n')
	}
	return WriteFile(path, []byte(content.String()))
}

// Move renames the file or directory. Across devices it copies and only then removes the source.
func Move(source string, destination string) error {
	err := os.Rename(source, destination)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyTree(source, destination); err != nil {
		return fmt.Errorf("copying %s to %s failed: %w", source, destination, err)
	}
	return os.RemoveAll(source)
}

func copyTree(source string, destination string) error {
	return filepath.WalkDir(source, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destination, rel)
		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case entry.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(source string, destination string, perm fs.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CountFiles counts the non-directory entries below the directory, zero if it does not exist.
// Paths matched by exclude are not counted, an excluded directory is skipped entirely.
func CountFiles(dir string, exclude func(path string) bool) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if exclude != nil && exclude(path) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.IsDir() {
			count++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return count, err
}

// Latest yields the most recently modified match of the glob pattern, empty if nothing matches.
func Latest(pattern string) string {
	matches, _ := filepath.Glob(pattern) //only bad patterns fail, which then match nothing
	latest := ""
	var latestTime int64
	sort.Strings(matches)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if modified := info.ModTime().UnixNano(); latest == "" || modified > latestTime {
			latest, latestTime = match, modified
		}
	}
	return latest
}
