package lock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// Heartbeat timing. A waiting process declares the writer dead when
// the lock file's modification time is older than MaxUpdateAge, which
// allows the writer to miss a couple of touches under load before a
// takeover happens.
const (
	// TouchInterval is how often the writer refreshes the lock file's
	// modification time.
	TouchInterval = 100 * time.Millisecond

	// MaxUpdateAge is the heartbeat age beyond which the writer is
	// presumed dead.
	MaxUpdateAge = 3 * TouchInterval
)

// Activity is what a waiting process observed on the lock file.
type Activity int

const (
	// ActivityDeleted means the lock file disappeared: the writer
	// finished and released the lock.
	ActivityDeleted Activity = iota

	// ActivityWriterDied means the heartbeat went stale.
	ActivityWriterDied
)

// State is the outcome of acquiring the lock.
type State int

const (
	// StateFree means the database was produced by another process and
	// is ready to use.
	StateFree State = iota

	// StateActionNeeded means this process holds the lock and must
	// create the database, then call Release.
	StateActionNeeded
)

// ErrNoLockFile is returned when a pid-list operation runs against a
// lock file that does not exist.
var ErrNoLockFile = errors.New("lock file does not exist")

// DbLock coordinates creation of one database file.
type DbLock struct {
	// path is the lock file location, next to the database file.
	path string

	// pid identifies this process in the registered-interest list.
	pid int

	mu            sync.Mutex
	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
}

// New returns a lock handle for the given lock file path.
func New(path string) *DbLock {
	return &DbLock{path: path, pid: os.Getpid()}
}

// Path returns the lock file path.
func (l *DbLock) Path() string { return l.path }

// PID returns the process id used for interest registration.
func (l *DbLock) PID() int { return l.pid }

// TryCreate attempts to create the lock file exclusively. It reports
// true when this process created the file and is therefore the writer.
func (l *DbLock) TryCreate() (bool, error) {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock file: %w", err)
	}
	if err := file.Close(); err != nil {
		return false, fmt.Errorf("failed to close lock file: %w", err)
	}
	return true, nil
}

// readPIDs returns the process ids registered in the lock file.
func (l *DbLock) readPIDs() ([]int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLockFile
		}
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	var pids []int
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("malformed pid %q in lock file: %w", line, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// writePIDs replaces the lock file's pid list. The write is atomic so
// concurrent readers never observe a torn list, and the rewrite
// doubles as a heartbeat touch.
func (l *DbLock) writePIDs(pids []int) error {
	var buf bytes.Buffer
	for _, pid := range pids {
		fmt.Fprintf(&buf, "%d\n", pid)
	}
	if err := atomic.WriteFile(l.path, &buf); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// RegisterInterest appends this process to the lock file's pid list.
func (l *DbLock) RegisterInterest() error {
	pids, err := l.readPIDs()
	if err != nil {
		return err
	}
	for _, pid := range pids {
		if pid == l.pid {
			return nil
		}
	}
	return l.writePIDs(append(pids, l.pid))
}

// UnregisterInterest removes this process from the lock file's pid
// list. A missing lock file is not an error; the writer may have
// finished and deleted it already.
func (l *DbLock) UnregisterInterest() error {
	pids, err := l.readPIDs()
	if errors.Is(err, ErrNoLockFile) {
		return nil
	}
	if err != nil {
		return err
	}

	kept := pids[:0]
	for _, pid := range pids {
		if pid != l.pid {
			kept = append(kept, pid)
		}
	}
	if len(kept) == len(pids) {
		return nil
	}
	return l.writePIDs(kept)
}

// ShouldTakeOverDbCreation reports whether this process is the one
// that must take over creation after a writer death. The registered
// process with the lowest pid wins; everyone else keeps waiting.
func (l *DbLock) ShouldTakeOverDbCreation() (bool, error) {
	pids, err := l.readPIDs()
	if err != nil {
		return false, err
	}

	registered := false
	lowest := l.pid
	for _, pid := range pids {
		if pid == l.pid {
			registered = true
		}
		if pid < lowest {
			lowest = pid
		}
	}
	return registered && lowest == l.pid, nil
}

// WaitForActivity blocks until the lock file is deleted or its
// heartbeat goes stale, polling on the heartbeat interval.
func (l *DbLock) WaitForActivity(ctx context.Context) (Activity, error) {
	ticker := time.NewTicker(TouchInterval)
	defer ticker.Stop()

	for {
		info, err := os.Stat(l.path)
		if os.IsNotExist(err) {
			return ActivityDeleted, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to stat lock file: %w", err)
		}
		if time.Since(info.ModTime()) > MaxUpdateAge {
			return ActivityWriterDied, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// StartHeartbeat begins refreshing the lock file's modification time
// in a background goroutine. It is a no-op if the heartbeat is
// already running.
func (l *DbLock) StartHeartbeat() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.heartbeatStop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	l.heartbeatStop = stop
	l.heartbeatDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(TouchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				now := time.Now()
				// A failed touch is retried on the next tick; waiters
				// only act after the full staleness window.
				_ = os.Chtimes(l.path, now, now)
			}
		}
	}()
}

// stopHeartbeat stops the heartbeat goroutine and waits for it.
func (l *DbLock) stopHeartbeat() {
	l.mu.Lock()
	stop, done := l.heartbeatStop, l.heartbeatDone
	l.heartbeatStop, l.heartbeatDone = nil, nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Acquire resolves who creates the database.
//
// It returns StateActionNeeded when this process holds the lock and
// must create the database, with the heartbeat already running.
// It returns StateFree when another process finished the database and
// released the lock. The call blocks while a live writer works.
func (l *DbLock) Acquire(ctx context.Context) (State, error) {
	created, err := l.TryCreate()
	if err != nil {
		return 0, err
	}
	if created {
		l.StartHeartbeat()
		return StateActionNeeded, nil
	}

	if err := l.RegisterInterest(); err != nil {
		// The writer may have released between TryCreate and here.
		if errors.Is(err, ErrNoLockFile) {
			return StateFree, nil
		}
		return 0, err
	}

	for {
		activity, err := l.WaitForActivity(ctx)
		if err != nil {
			_ = l.UnregisterInterest()
			return 0, err
		}

		switch activity {
		case ActivityDeleted:
			return StateFree, nil

		case ActivityWriterDied:
			takeOver, err := l.ShouldTakeOverDbCreation()
			if errors.Is(err, ErrNoLockFile) {
				return StateFree, nil
			}
			if err != nil {
				return 0, err
			}
			if takeOver {
				if err := l.UnregisterInterest(); err != nil {
					return 0, err
				}
				l.StartHeartbeat()
				return StateActionNeeded, nil
			}
			// Wait out the takeover by whichever process won; its
			// heartbeat restarts the staleness clock.
			select {
			case <-ctx.Done():
				_ = l.UnregisterInterest()
				return 0, ctx.Err()
			case <-time.After(MaxUpdateAge):
			}
		}
	}
}

// Release stops the heartbeat and deletes the lock file, signaling
// waiters that the database is ready.
func (l *DbLock) Release() error {
	l.stopHeartbeat()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
