// Package storage keeps backup snapshots as files in a flat archive
// directory.
package storage

import "time"

// Entry describes one archived backup file.
type Entry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"modTime"`
}

// Archive is the interface for backup file operations. Names are plain
// file names ending in .json; subdirectories are not used.
type Archive interface {
	// List returns every archived backup, newest first.
	List() ([]Entry, error)
	// Read returns the raw bytes of the named backup.
	Read(name string) ([]byte, error)
	// Write atomically stores content under name, replacing any previous file.
	Write(name string, content []byte) error
	// Delete removes the named backup.
	Delete(name string) error
}
