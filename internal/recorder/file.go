// internal/recorder/file.go
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/stickersmith/internal/types"
)

// FileRecorder is a JSON-file-backed usage recorder. Daily counters
// live in usage/counters.json; per-user event logs are appended to
// usage/events/<userID>.jsonl.
type FileRecorder struct {
	root       string
	dailyLimit int

	mu sync.Mutex // guards counters.json

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

// NewFileRecorder creates a file-backed recorder rooted at the given
// directory. A dailyLimit of 0 disables the limit.
func NewFileRecorder(root string, dailyLimit int) *FileRecorder {
	return &FileRecorder{
		root:       root,
		dailyLimit: dailyLimit,
		locks:      make(map[int64]*sync.Mutex),
	}
}

func (r *FileRecorder) countersPath() string {
	return filepath.Join(r.root, "usage", "counters.json")
}

func (r *FileRecorder) eventsPath(userID int64) string {
	return filepath.Join(r.root, "usage", "events", fmt.Sprintf("%d.jsonl", userID))
}

// counterKey identifies one user's counter for one UTC day.
func counterKey(userID int64, now time.Time) string {
	return fmt.Sprintf("%d:%s", userID, now.UTC().Format("2006-01-02"))
}

// getLock returns the per-user event mutex, creating one if it doesn't exist.
func (r *FileRecorder) getLock(userID int64) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	if lock, ok := r.locks[userID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	r.locks[userID] = lock
	return lock
}

// loadCounters reads counters.json. Caller must hold mu.
func (r *FileRecorder) loadCounters() (map[string]int, error) {
	data, err := os.ReadFile(r.countersPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]int), nil
		}
		return nil, fmt.Errorf("read usage counters: %w", err)
	}

	var counters map[string]int
	if err := json.Unmarshal(data, &counters); err != nil {
		return nil, fmt.Errorf("unmarshal usage counters: %w", err)
	}
	return counters, nil
}

// saveCounters marshals with indentation and writes atomically. Caller must hold mu.
func (r *FileRecorder) saveCounters(counters map[string]int) error {
	data, err := json.MarshalIndent(counters, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal usage counters: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.countersPath()), 0o755); err != nil {
		return fmt.Errorf("create usage dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := r.countersPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp counters: %w", err)
	}
	if err := os.Rename(tmp, r.countersPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp counters: %w", err)
	}
	return nil
}

// CheckDailyLimit reports whether the user may start another generation today.
func (r *FileRecorder) CheckDailyLimit(_ context.Context, userID int64) (types.Decision, error) {
	if r.dailyLimit <= 0 {
		return types.Decision{Allowed: true}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	counters, err := r.loadCounters()
	if err != nil {
		return types.Decision{}, err
	}

	used := counters[counterKey(userID, time.Now())]
	if used >= r.dailyLimit {
		return types.Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("daily limit of %d packs reached", r.dailyLimit),
		}, nil
	}
	return types.Decision{Allowed: true}, nil
}

// RecordGeneration increments the user's counter for the current UTC day.
func (r *FileRecorder) RecordGeneration(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters, err := r.loadCounters()
	if err != nil {
		return err
	}

	counters[counterKey(userID, time.Now())]++
	return r.saveCounters(counters)
}

// LogEvent appends a usage event to the user's log with an
// auto-incremented sequence number.
func (r *FileRecorder) LogEvent(_ context.Context, userID int64, stage string, metadata map[string]any) error {
	lock := r.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	path := r.eventsPath(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create events dir: %w", err)
	}

	existing, err := r.countEvents(path)
	if err != nil {
		return err
	}

	event := &types.UsageEvent{
		ID:       types.NewEventID(),
		UserID:   userID,
		Seq:      existing + 1,
		Stage:    stage,
		At:       time.Now().UTC(),
		Metadata: metadata,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// countEvents counts lines in the event file. Caller must hold the user lock.
func (r *FileRecorder) countEvents(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan events file: %w", err)
	}
	return count, nil
}

// Tail returns the last N usage events for the given user.
func (r *FileRecorder) Tail(_ context.Context, userID int64, limit int) ([]*types.UsageEvent, error) {
	lock := r.getLock(userID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(r.eventsPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var events []*types.UsageEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event types.UsageEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events file: %w", err)
	}

	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
