package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer provides thread-safe report updates. Multiple session
// goroutines can record runs concurrently.
type Writer struct {
	mu        sync.Mutex
	outputDir string
	path      string
	index     *Index
}

// NewWriter creates a report writer rooted at outputDir and writes the
// initial skeleton.
func NewWriter(outputDir string, device Device) (*Writer, error) {
	if err := ensureDir(filepath.Join(outputDir, "runs")); err != nil {
		return nil, fmt.Errorf("create runs dir: %w", err)
	}
	if err := ensureDir(filepath.Join(outputDir, "assets")); err != nil {
		return nil, fmt.Errorf("create assets dir: %w", err)
	}

	now := time.Now()
	w := &Writer{
		outputDir: outputDir,
		path:      filepath.Join(outputDir, "report.json"),
		index: &Index{
			Version:     Version,
			Status:      StatusRunning,
			StartTime:   now,
			LastUpdated: now,
			Device:      device,
		},
	}
	if err := w.flushLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// AddRun records a completed run: the entry goes into the index, the
// detail into its own file under runs/.
func (w *Writer) AddRun(detail RunDetail) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.index.Runs = append(w.index.Runs, detail.RunEntry)

	runPath := filepath.Join(w.outputDir, "runs", detail.ID+".json")
	if err := atomicWriteJSON(runPath, detail); err != nil {
		return fmt.Errorf("write run %s: %w", detail.ID, err)
	}
	return w.flushLocked()
}

// SaveAsset stores a raw artifact under assets/<runID>/ and returns
// its path relative to the report root.
func (w *Writer) SaveAsset(runID, filename string, data []byte) (string, error) {
	dir := filepath.Join(w.outputDir, "assets", runID)
	if err := ensureDir(dir); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", err
	}
	return filepath.Join("assets", runID, filename), nil
}

// End marks the report complete and writes the final index.
func (w *Writer) End() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.computeStatus()
	return w.flushLocked()
}

// GetIndex returns a copy of the current index for reading.
func (w *Writer) GetIndex() Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.index
}

func (w *Writer) flushLocked() error {
	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = w.computeSummary()
	return atomicWriteJSON(w.path, w.index)
}

func (w *Writer) computeSummary() Summary {
	var s Summary
	for _, r := range w.index.Runs {
		s.Total++
		switch r.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

func (w *Writer) computeStatus() Status {
	for _, r := range w.index.Runs {
		if r.Status == StatusFailed {
			return StatusFailed
		}
	}
	return StatusPassed
}

// atomicWriteJSON writes via a temp file and rename so readers never
// see a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
