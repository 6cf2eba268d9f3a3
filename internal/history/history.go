// Package history remembers the source folders picked in the interactive flow.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DennySORA/Remove-Background/internal/utils"
)

// FileName is the default history file, kept in the working directory
const FileName = ".rembg_history.json"

// MaxEntries is how many folders are remembered
const MaxEntries = 10

// PathHistory reads and writes the folder history file
type PathHistory struct {
	file string
}

// New creates a history stored at file; an empty file selects FileName in
// the working directory
func New(file string) *PathHistory {
	if file == "" {
		file = FileName
	}
	return &PathHistory{file: file}
}

// File returns the path of the history file
func (h *PathHistory) File() string { return h.file }

// Load returns the remembered folders, newest first. Entries that are no
// longer directories are dropped; a missing or corrupt file reads as empty.
func (h *PathHistory) Load() []string {
	data, err := os.ReadFile(h.file)
	if err != nil {
		return nil
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	var out []string
	for _, p := range raw {
		if p != "" && utils.DirExists(p) {
			out = append(out, p)
		}
	}
	return out
}

// Save records dir as the newest entry, removing duplicates and trimming the
// list to MaxEntries
func (h *PathHistory) Save(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	entries := []string{abs}
	for _, p := range h.Load() {
		if filepath.Clean(p) != abs {
			entries = append(entries, p)
		}
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if dir := filepath.Dir(h.file); dir != "." {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	if err := os.WriteFile(h.file, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
