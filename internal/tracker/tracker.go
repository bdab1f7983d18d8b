// Package tracker records which external content files feed which pages, so
// the watch loop can translate filesystem changes into the exact set of
// pages that need re-resolution. The host pipeline owns the actual
// filesystem watch mechanism; this is the pure dependency-edge set behind
// it.
package tracker

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prologbook/prologbook/internal/types"
)

// ChangeTracker maintains a many-to-many mapping between watched files and
// dependent pages, together with a modtime signature per file taken when the
// file was first read during the build.
type ChangeTracker struct {
	mu          sync.RWMutex
	fileToPages map[string]map[types.PageRef]struct{}
	pageToFiles map[types.PageRef]map[string]struct{}
	signatures  map[string]time.Time
}

// NewChangeTracker creates an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		fileToPages: make(map[string]map[types.PageRef]struct{}),
		pageToFiles: make(map[types.PageRef]map[string]struct{}),
		signatures:  make(map[string]time.Time),
	}
}

// Watch records that page depends on path. The file's current modtime is
// captured as its signature the first time the path is seen.
func (t *ChangeTracker) Watch(path string, page types.PageRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, seen := t.fileToPages[path]; !seen {
		t.fileToPages[path] = make(map[types.PageRef]struct{})
		if info, err := os.Stat(path); err == nil {
			t.signatures[path] = info.ModTime()
		}
	}
	t.fileToPages[path][page] = struct{}{}

	if _, seen := t.pageToFiles[page]; !seen {
		t.pageToFiles[page] = make(map[string]struct{})
	}
	t.pageToFiles[page][path] = struct{}{}
}

// FilesChanged returns exactly the sorted set of pages depending on any of
// the given paths. The caller re-parses those pages and re-invokes the
// engine for them.
func (t *ChangeTracker) FilesChanged(paths []string) []types.PageRef {
	t.mu.RLock()
	defer t.mu.RUnlock()

	affected := make(map[types.PageRef]struct{})
	for _, path := range paths {
		for page := range t.fileToPages[path] {
			affected[page] = struct{}{}
		}
	}
	return sortedPages(affected)
}

// OutdatedPages compares every watched file's current modtime against its
// recorded signature and returns the pages fed by files that changed or
// disappeared since they were read.
func (t *ChangeTracker) OutdatedPages() []types.PageRef {
	t.mu.RLock()
	defer t.mu.RUnlock()

	affected := make(map[types.PageRef]struct{})
	for path, pages := range t.fileToPages {
		signature, ok := t.signatures[path]
		info, err := os.Stat(path)
		stale := err != nil || !ok || !info.ModTime().Equal(signature)
		if !stale {
			continue
		}
		for page := range pages {
			affected[page] = struct{}{}
		}
	}
	return sortedPages(affected)
}

// ResetPage drops all dependency edges of a page before it is reprocessed,
// so removed dependencies stop triggering rebuilds. The mapping is rebuilt
// by the page's next resolution pass, not appended to.
func (t *ChangeTracker) ResetPage(page types.PageRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for path := range t.pageToFiles[page] {
		delete(t.fileToPages[path], page)
		if len(t.fileToPages[path]) == 0 {
			delete(t.fileToPages, path)
			delete(t.signatures, path)
		}
	}
	delete(t.pageToFiles, page)
}

// Reset clears the tracker at the start of a full build.
func (t *ChangeTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fileToPages = make(map[string]map[types.PageRef]struct{})
	t.pageToFiles = make(map[types.PageRef]map[string]struct{})
	t.signatures = make(map[string]time.Time)
}

// WatchedFiles returns the sorted list of files currently feeding any page.
func (t *ChangeTracker) WatchedFiles() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	files := make([]string, 0, len(t.fileToPages))
	for path := range t.fileToPages {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// DependenciesOf returns the sorted files the given page depends on.
func (t *ChangeTracker) DependenciesOf(page types.PageRef) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	files := make([]string, 0, len(t.pageToFiles[page]))
	for path := range t.pageToFiles[page] {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

func sortedPages(set map[types.PageRef]struct{}) []types.PageRef {
	pages := make([]types.PageRef, 0, len(set))
	for page := range set {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}
