package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Progress is a point-in-time view of a long-running job.
type Progress struct {
	Completed int
	Total     int
	Elapsed   time.Duration
}

// Percent is the completed share in [0, 100].
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return 100 * float64(p.Completed) / float64(p.Total)
}

// ETA extrapolates the remaining time from the average time per item.
// It is zero until at least one item completes.
func (p Progress) ETA() time.Duration {
	if p.Completed <= 0 || p.Completed >= p.Total {
		return 0
	}
	perItem := p.Elapsed / time.Duration(p.Completed)
	return perItem * time.Duration(p.Total-p.Completed)
}

// Tracker counts completed work. Completed and Total never decrease.
// Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	// notifyMu orders callbacks; it is taken before mu
	notifyMu sync.Mutex

	completed int
	total     int
	start     time.Time
	now       func() time.Time
	onChange  func(Progress)
}

// NewTracker starts a tracker. onChange, if set, is called after every
// update, one call at a time and in update order, so a callback never sees
// an older snapshot than the one before it. onChange may call Snapshot but
// must not update the tracker.
func NewTracker(total int, onChange func(Progress)) *Tracker {
	if total < 0 {
		total = 0
	}
	return &Tracker{total: total, start: time.Now(), now: time.Now, onChange: onChange}
}

// SetTotal raises the expected total. Lower values are ignored.
func (t *Tracker) SetTotal(total int) {
	t.update(func() {
		if total > t.total {
			t.total = total
		}
	})
}

// Advance marks n more items as done.
func (t *Tracker) Advance(n int) {
	if n <= 0 {
		return
	}
	t.update(func() {
		t.completed += n
		if t.completed > t.total {
			t.total = t.completed
		}
	})
}

func (t *Tracker) update(fn func()) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	fn()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(snap)
	}
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Progress {
	return Progress{Completed: t.completed, Total: t.total, Elapsed: t.now().Sub(t.start)}
}

// ETA is shorthand for Snapshot().ETA().
func (t *Tracker) ETA() time.Duration { return t.Snapshot().ETA() }

// ProgressFile publishes snapshots as JSON for an external display.
type ProgressFile struct {
	path string
	mu   sync.Mutex
}

// NewProgressFile creates a writer for path. An empty path disables writing.
func NewProgressFile(path string) *ProgressFile {
	return &ProgressFile{path: path}
}

type progressDoc struct {
	Current     int     `json:"current"`
	Total       int     `json:"total"`
	ProgressPct float64 `json:"progress_pct"`
	ElapsedSec  float64 `json:"elapsed_sec"`
	ETASec      float64 `json:"eta_sec"`
}

// Write replaces the file atomically so readers never see a partial document.
func (f *ProgressFile) Write(p Progress) error {
	if f == nil || f.path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(progressDoc{
		Current:     p.Completed,
		Total:       p.Total,
		ProgressPct: float64(int(p.Percent()*10)) / 10,
		ElapsedSec:  p.Elapsed.Seconds(),
		ETASec:      p.ETA().Seconds(),
	})
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("progress: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("progress: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("progress: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("progress: rename: %w", err)
	}
	return nil
}

// Read loads the last published snapshot.
func (f *ProgressFile) Read() (Progress, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Progress{}, fmt.Errorf("progress: read: %w", err)
	}
	var doc progressDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Progress{}, fmt.Errorf("progress: decode: %w", err)
	}
	return Progress{
		Completed: doc.Current,
		Total:     doc.Total,
		Elapsed:   time.Duration(doc.ElapsedSec * float64(time.Second)),
	}, nil
}
