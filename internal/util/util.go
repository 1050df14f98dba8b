package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Sha256Hex returns the hex-encoded SHA-256 digest of the input string
func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// FileExists reports whether the given path exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether the given path is an existing directory
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// ResolveTilde expands a leading ~ in the path to the user's home directory
func ResolveTilde(path string) string {
	p, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return p
}

// SplitOnDoubleColon splits "first::second" on the first "::" separator.
// The second part is empty when no separator is present.
func SplitOnDoubleColon(s string) (string, string) {
	parts := strings.SplitN(s, "::", 2)
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// NowCompact returns the local time formatted as YYYYMMDD-HHMM
func NowCompact() string {
	return time.Now().Format("20060102-1504")
}

// DeleteOldFiles removes the oldest regular files in dir until at most
// filesToKeep remain. Files are ordered by modification time; directories
// and other non-regular entries are left alone.
func DeleteOldFiles(dir string, filesToKeep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}

	var files []fileInfo
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, fileInfo{filepath.Join(dir, e.Name()), info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	if len(files) <= filesToKeep {
		return nil
	}

	for _, f := range files[:len(files)-filesToKeep] {
		if err := os.Remove(f.path); err != nil {
			return fmt.Errorf("removing '%s': %w", f.path, err)
		}
	}
	return nil
}
