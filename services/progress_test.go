package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressETA(t *testing.T) {
	p := Progress{Completed: 4, Total: 10, Elapsed: 8 * time.Second}
	assert.Equal(t, 12*time.Second, p.ETA())
	assert.Equal(t, 40.0, p.Percent())

	assert.Zero(t, Progress{Total: 10, Elapsed: time.Second}.ETA())
	assert.Zero(t, Progress{Completed: 10, Total: 10, Elapsed: time.Second}.ETA())
	assert.Zero(t, Progress{}.Percent())
}

func TestTrackerIsMonotonic(t *testing.T) {
	tr := NewTracker(10, nil)
	tr.Advance(3)
	tr.SetTotal(5)
	tr.Advance(-2)

	snap := tr.Snapshot()
	assert.Equal(t, 3, snap.Completed)
	assert.Equal(t, 10, snap.Total)

	tr.Advance(9)
	snap = tr.Snapshot()
	assert.Equal(t, 12, snap.Completed)
	assert.Equal(t, 12, snap.Total)
}

func TestTrackerETA(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	tr := NewTracker(4, nil)
	tr.start = start
	tr.now = func() time.Time { return now }

	now = start.Add(10 * time.Second)
	tr.Advance(1)
	assert.Equal(t, 30*time.Second, tr.ETA())
}

func TestTrackerConcurrentCallbacks(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	tr := NewTracker(50, func(p Progress) {
		mu.Lock()
		seen = append(seen, p.Completed)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Advance(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tr.Snapshot().Completed)
	assert.Len(t, seen, 50)
}

func TestTrackerCallbacksNeverGoBackwards(t *testing.T) {
	const workers, steps = 8, 500

	var last, regressions, calls int
	tr := NewTracker(0, func(p Progress) {
		calls++
		if p.Completed < last {
			regressions++
		}
		last = p.Completed
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < steps; j++ {
				tr.Advance(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, regressions)
	assert.Equal(t, workers*steps, calls)
	assert.Equal(t, workers*steps, last)
}

func TestProgressFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	f := NewProgressFile(path)

	require.NoError(t, f.Write(Progress{Completed: 1, Total: 3, Elapsed: 2 * time.Second}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 1.0, doc["current"])
	assert.Equal(t, 3.0, doc["total"])
	assert.Equal(t, 33.3, doc["progress_pct"])
	assert.Equal(t, 4.0, doc["eta_sec"])

	got, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, got.Completed)
	assert.Equal(t, 2*time.Second, got.Elapsed)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	assert.NoError(t, NewProgressFile("").Write(Progress{}))
}
