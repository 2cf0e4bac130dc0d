package memory

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Journal wraps a Store and mirrors every committed exchange to an
// append-only JSONL file, one exchange per line. Reads (Snapshot, Len) are
// served by the wrapped store; the file is never consulted after startup.
//
// Clear truncates the file as well, so a cleared session does not resurrect
// old history on the next restart.
type Journal struct {
	inner Store

	mu   sync.Mutex
	path string
	file *os.File
	enc  *json.Encoder
}

// Compile-time assertion that Journal satisfies Store.
var _ Store = (*Journal)(nil)

// NewJournal opens (or creates) the JSONL file at path and wraps inner so
// that future appends are mirrored to it. It does not replay the file; call
// [Replay] first when history should seed the store.
func NewJournal(inner Store, path string) (*Journal, error) {
	if inner == nil {
		return nil, errors.New("memory: journal requires a backing store")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("memory: open journal %q: %w", path, err)
	}
	return &Journal{
		inner: inner,
		path:  path,
		file:  f,
		enc:   json.NewEncoder(f),
	}, nil
}

// Append implements Store. The exchange is committed to the backing store
// first; a journal write failure surfaces as an error but the in-process
// state already holds the exchange.
func (j *Journal) Append(ex Exchange) error {
	if err := j.inner.Append(ex); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(ex); err != nil {
		return fmt.Errorf("memory: journal append: %w", err)
	}
	return nil
}

// Snapshot implements Store.
func (j *Journal) Snapshot() []Exchange { return j.inner.Snapshot() }

// Len implements Store.
func (j *Journal) Len() int { return j.inner.Len() }

// Clear implements Store. It clears the backing store and truncates the
// journal file.
func (j *Journal) Clear() error {
	if err := j.inner.Clear(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.file.Truncate(0); err != nil {
		return fmt.Errorf("memory: truncate journal: %w", err)
	}
	if _, err := j.file.Seek(0, 0); err != nil {
		return fmt.Errorf("memory: rewind journal: %w", err)
	}
	return nil
}

// Close flushes and closes the journal file. The backing store is unaffected.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Replay reads the JSONL file at path and appends its exchanges to store in
// file order. Malformed lines are skipped rather than failing the whole
// replay, since an append-only log may carry a torn final line after a crash.
// A missing file is not an error. Returns the number of exchanges loaded.
//
// When store is bounded, replaying more exchanges than its capacity leaves
// only the most recent ones, matching normal eviction.
func Replay(store Store, path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("memory: open journal %q: %w", path, err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ex Exchange
		if err := json.Unmarshal(line, &ex); err != nil {
			continue
		}
		if err := store.Append(ex); err != nil {
			return loaded, err
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("memory: read journal %q: %w", path, err)
	}
	return loaded, nil
}
