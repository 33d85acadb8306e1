// Package storage is the file-system abstraction behind the inbox folder.
package storage

import "time"

// Entry describes one file accepted by a Provider.
type Entry struct {
	Path     string // relative to the root
	Size     int64
	Checksum string
	ModTime  time.Time
}

// Provider reads and archives files under a root directory. All paths are
// relative to that root.
type Provider interface {
	// List returns every accepted file under dir, skipping hidden directories.
	List(dir string) ([]Entry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
	// Accepts reports whether path has one of the accepted extensions.
	Accepts(path string) bool
}
