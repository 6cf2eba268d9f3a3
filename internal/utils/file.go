package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// supportedExts lists the raster formats the batch accepts (lowercase, without the dot)
var supportedExts = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"bmp":  {},
	"gif":  {},
}

// DefaultOutputDirName is the subfolder created under the source folder
const DefaultOutputDirName = "output"

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has a supported image extension
func IsImageFile(filename string) bool {
	_, ok := supportedExts[GetFileExtension(filename)]
	return ok
}

// SupportedExtensions returns the accepted extensions with a leading dot, sorted
func SupportedExtensions() []string {
	out := make([]string, 0, len(supportedExts))
	for ext := range supportedExts {
		out = append(out, "."+ext)
	}
	sort.Strings(out)
	return out
}

// OutputPath maps a source image to its PNG destination inside outputDir
func OutputPath(sourcePath, outputDir string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+".png")
}

// DefaultOutputDir returns <source>/output
func DefaultOutputDir(sourceDir string) string {
	return filepath.Join(sourceDir, DefaultOutputDirName)
}

// ListImageFiles lists the image files directly inside dir, sorted by name.
// Subdirectories are not descended into.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsImageFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// CheckReadableDir verifies dir exists, is a directory and can be listed
func CheckReadableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// CheckWritableDir walks up to the nearest existing ancestor of dir and checks
// that a file can be created there. Nothing is left behind on disk.
func CheckWritableDir(dir string) error {
	probe := dir
	for {
		info, err := os.Stat(probe)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", probe)
			}
			break
		}
		if !os.IsNotExist(err) {
			return err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return fmt.Errorf("no existing ancestor for %s", dir)
		}
		probe = parent
	}

	f, err := os.CreateTemp(probe, ".rembg-write-check-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", probe, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
