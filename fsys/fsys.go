// Package fsys implements the agent's sandboxed file system state: an
// in-memory set of named files the read_file/write_file/replace_file_str
// actions operate on, lazily mirrored to disk under a per-run directory
// so a human can inspect artifacts after the fact.
package fsys

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agentrt/browseragent/agenterr"
)

// allowedExtensions are the only file types the sandbox will create or
// write to; anything else is rejected by ValidName via
// agenterr.CodeUnsupportedExt.
var allowedExtensions = map[string]bool{
	".md": true, ".txt": true, ".json": true, ".jsonl": true,
	".csv": true, ".pdf": true, ".html": true, ".xml": true,
}

// File is one sandboxed file's in-memory content.
type File struct {
	Name    string
	Content []byte
}

// FileSystem is the in-memory sandbox. Safe for concurrent use.
type FileSystem struct {
	mu    sync.RWMutex
	files map[string]*File
}

// New creates an empty sandbox.
func New() *FileSystem {
	return &FileSystem{files: make(map[string]*File)}
}

// ValidName reports whether name is a bare filename (no path separators,
// no "..") with an allowed extension.
func ValidName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return agenterr.New(agenterr.CodeBadFilename, fmt.Sprintf("invalid file name %q", name), nil)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return agenterr.New(agenterr.CodeUnsupportedExt, fmt.Sprintf("unsupported extension %q", ext), nil)
	}
	return nil
}

// Write creates or overwrites a file's content.
func (fs *FileSystem) Write(name string, content []byte) error {
	if err := ValidName(name); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[name] = &File{Name: name, Content: content}
	return nil
}

// Read returns a file's content, or an error if it doesn't exist.
func (fs *FileSystem) Read(name string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	f, ok := fs.files[name]
	if !ok {
		return nil, agenterr.New(agenterr.CodeBadFilename, fmt.Sprintf("no such file %q", name), nil)
	}
	return f.Content, nil
}

// ReplaceString replaces all occurrences of old with new in the named
// file and returns the number of replacements made.
func (fs *FileSystem) ReplaceString(name, old, newStr string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[name]
	if !ok {
		return 0, agenterr.New(agenterr.CodeBadFilename, fmt.Sprintf("no such file %q", name), nil)
	}
	count := strings.Count(string(f.Content), old)
	if count == 0 {
		return 0, nil
	}
	f.Content = []byte(strings.ReplaceAll(string(f.Content), old, newStr))
	return count, nil
}

// List returns file names in sorted order.
func (fs *FileSystem) List() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	names := make([]string, 0, len(fs.files))
	for n := range fs.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe renders a short human-readable summary for the message
// builder: one line per file with its size.
func (fs *FileSystem) Describe() string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	names := make([]string, 0, len(fs.files))
	for n := range fs.files {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s (%d bytes)\n", n, len(fs.files[n].Content))
	}
	return b.String()
}

// ToDisk mirrors every sandboxed file to dir, recreating dir from
// scratch first so a prior run's artifacts never bleed into this one.
func (fs *FileSystem) ToDisk(dir string) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("fsys: clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsys: create %s: %w", dir, err)
	}
	for name, f := range fs.files {
		if err := os.WriteFile(filepath.Join(dir, name), f.Content, 0o644); err != nil {
			return fmt.Errorf("fsys: write %s: %w", name, err)
		}
	}
	return nil
}

// FromDisk reconstructs a FileSystem by reading every regular file
// directly under dir. Combined with ToDisk, FromDisk(ToDisk(fs)) yields a
// FileSystem with the same file set and content as fs.
func FromDisk(dir string) (*FileSystem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("fsys: read %s: %w", dir, err)
	}
	out := New()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("fsys: read %s: %w", e.Name(), err)
		}
		out.files[e.Name()] = &File{Name: e.Name(), Content: content}
	}
	return out, nil
}
