package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/nudge-project/nudge/pkg/fsutil"
	"github.com/nudge-project/nudge/pkg/model"
)

const (
	recordFile = "ledger.json"
	lockFile   = "ledger.lock"
)

// FileStore keeps the current timeline's record in <dir>/ledger.json.
// Read-modify-write runs under an exclusive flock on <dir>/ledger.lock and
// the record is replaced with an atomic rename.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the state directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) recordPath() string { return filepath.Join(s.dir, recordFile) }
func (s *FileStore) lockPath() string   { return filepath.Join(s.dir, lockFile) }

func (s *FileStore) Load(timeline string) (model.LedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(timeline)
}

func (s *FileStore) Increment(timeline string, until, now time.Time, limit int) (model.LedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := fsutil.Lock(s.lockPath())
	if err != nil {
		return model.LedgerRecord{}, err
	}
	defer lock.Unlock()

	rec, err := s.read(timeline)
	if err != nil {
		return model.LedgerRecord{}, err
	}
	if limit > 0 && rec.QuitCount >= limit {
		return rec, ErrLimitReached
	}
	rec.QuitCount++
	rec.DeferredUntil = until.UTC()
	rec.UpdatedAt = now.UTC()

	if err := fsutil.AtomicWriteJSON(s.recordPath(), rec, 0644); err != nil {
		return model.LedgerRecord{}, fmt.Errorf("write ledger: %w", err)
	}
	return rec, nil
}

func (s *FileStore) Reset(timeline string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := fsutil.Lock(s.lockPath())
	if err != nil {
		return err
	}
	defer lock.Unlock()

	rec := model.LedgerRecord{Timeline: timeline, UpdatedAt: now.UTC()}
	if err := fsutil.AtomicWriteJSON(s.recordPath(), rec, 0644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) read(timeline string) (model.LedgerRecord, error) {
	fresh := model.LedgerRecord{Timeline: timeline}

	data, err := os.ReadFile(s.recordPath())
	if os.IsNotExist(err) {
		return fresh, nil
	}
	if err != nil {
		return model.LedgerRecord{}, fmt.Errorf("read ledger: %w", err)
	}

	var rec model.LedgerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.LedgerRecord{}, errclass.ErrLedgerCorrupt.WithMessagef("%s: %v", s.recordPath(), err)
	}
	if rec.QuitCount < 0 {
		return model.LedgerRecord{}, errclass.ErrLedgerCorrupt.WithMessagef("%s: negative quit count %d", s.recordPath(), rec.QuitCount)
	}
	if rec.Timeline != timeline {
		return fresh, nil
	}
	return rec, nil
}

var _ Store = (*FileStore)(nil)
