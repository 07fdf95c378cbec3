package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StringListReport accumulates lines that are flushed to a file at the end
// of a run.
type StringListReport struct {
	mu    sync.Mutex
	Title string
	Items []string
}

// FetchReport collects one line per fetched archive during a run.
var FetchReport = &StringListReport{Title: "FetchedArchives"}

// Add appends an item to the report.
func (r *StringListReport) Add(item string) {
	r.mu.Lock()
	r.Items = append(r.Items, item)
	r.mu.Unlock()
}

// Len returns the number of pending items.
func (r *StringListReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Items)
}

// WriteToFile appends the report items to dir/fetch-<title>.txt and clears them.
func (r *StringListReport) WriteToFile(dir string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating base path: %w", err)
	}

	title := r.Title
	if title == "" {
		title = "untitled"
	}
	safeTitle := ""
	for _, c := range title {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			safeTitle += string(c)
		} else {
			safeTitle += "_"
		}
	}

	reportPath := filepath.Join(dir, fmt.Sprintf("fetch-%s.txt", safeTitle))
	f, err := os.OpenFile(reportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	for _, item := range r.Items {
		if _, err := fmt.Fprintln(f, item); err != nil {
			return "", fmt.Errorf("writing to file: %w", err)
		}
	}
	r.Items = nil
	if _, err := fmt.Fprintln(f); err != nil {
		return "", fmt.Errorf("writing new line to file: %w", err)
	}
	return reportPath, nil
}
