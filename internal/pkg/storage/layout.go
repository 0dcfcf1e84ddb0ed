// Package storage decides where downloaded files live on disk: one
// directory per author, numbered subdirectories capped at a fixed file
// count, and collision-proof filenames. It works through an afero
// filesystem so the layout logic is testable in memory.
package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeAuthor turns an author display name into a path-safe directory
// name. Empty or fully unsafe names collapse to "unknown".
func SanitizeAuthor(author string) string {
	clean := unsafeChars.ReplaceAllString(strings.TrimSpace(author), "_")
	clean = strings.Trim(clean, "._")
	if clean == "" {
		return "unknown"
	}
	return clean
}

// Layout allocates target paths under a root directory.
type Layout struct {
	fs             afero.Fs
	root           string
	filesPerSubdir int

	mu       sync.Mutex
	counters map[string]*authorCounter
}

type authorCounter struct {
	subdir int
	count  int
}

func NewLayout(fs afero.Fs, root string, filesPerSubdir int) *Layout {
	if filesPerSubdir <= 0 {
		filesPerSubdir = 1000
	}
	return &Layout{
		fs:             fs,
		root:           root,
		filesPerSubdir: filesPerSubdir,
		counters:       make(map[string]*authorCounter),
	}
}

// Fs exposes the underlying filesystem so download code writes through the
// same abstraction the layout allocates on.
func (l *Layout) Fs() afero.Fs {
	return l.fs
}

// Root returns the archive root directory.
func (l *Layout) Root() string {
	return l.root
}

// NextPath returns the path a new file for the given author and image ID
// should be written to, creating the author and subdirectory as needed.
// The unixnano component makes concurrent allocations collision-free even
// for the same image ID.
func (l *Layout) NextPath(author, imageID, ext string) (string, error) {
	dir, err := l.allocate(SanitizeAuthor(author))
	if err != nil {
		return "", err
	}

	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpg"
	}

	name := fmt.Sprintf("%s_%d.%s", imageID, time.Now().UnixNano(), ext)
	return filepath.Join(dir, name), nil
}

func (l *Layout) allocate(author string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[author]
	if !ok {
		var err error
		c, err = l.scanAuthor(author)
		if err != nil {
			return "", err
		}
		l.counters[author] = c
	}

	if c.count >= l.filesPerSubdir {
		c.subdir++
		c.count = 0
	}

	dir := filepath.Join(l.root, author, fmt.Sprintf("%04d", c.subdir))
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	c.count++
	return dir, nil
}

// scanAuthor resumes the counter from what earlier runs left on disk: the
// highest numbered subdirectory and its current file count.
func (l *Layout) scanAuthor(author string) (*authorCounter, error) {
	authorDir := filepath.Join(l.root, author)

	entries, err := afero.ReadDir(l.fs, authorDir)
	if err != nil {
		// author never seen before
		return &authorCounter{subdir: 1, count: 0}, nil
	}

	var subdirs []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil {
			subdirs = append(subdirs, n)
		}
	}
	if len(subdirs) == 0 {
		return &authorCounter{subdir: 1, count: 0}, nil
	}

	sort.Ints(subdirs)
	last := subdirs[len(subdirs)-1]

	files, err := afero.ReadDir(l.fs, filepath.Join(authorDir, fmt.Sprintf("%04d", last)))
	if err != nil {
		return nil, err
	}

	count := 0
	for _, f := range files {
		if !f.IsDir() && !strings.HasSuffix(f.Name(), lockSuffix) {
			count++
		}
	}

	return &authorCounter{subdir: last, count: count}, nil
}
