// Package watch provides host implementations of the content loader and
// watcher: the real filesystem through fsnotify, and an in-memory tree.
package watch

import "os"

// OSLoader reads files from disk.
type OSLoader struct{}

// Get returns the file's text. Missing and unreadable files report false.
func (OSLoader) Get(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}
