// Package audit keeps a tamper-evident record of enforcement events. Each
// JSONL line carries the hash of the line before it.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/nudge-project/nudge/pkg/errclass"
	"github.com/nudge-project/nudge/pkg/fsutil"
	"github.com/nudge-project/nudge/pkg/model"
)

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Path returns the audit log location.
func (a *FileAppender) Path() string { return a.path }

// Append adds an event to the log.
func (a *FileAppender) Append(ev model.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	lock, err := fsutil.Lock(a.path + ".lock")
	if err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer lock.Unlock()

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	details := ev.Fields()
	delete(details, "event")
	delete(details, "timeline")
	record := &model.AuditRecord{
		Timestamp: ev.At.UTC(),
		EventType: ev.Type,
		Timeline:  ev.Timeline,
		Details:   details,
		PrevHash:  prevHash,
	}
	recordHash, err := computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	record.RecordHash = recordHash

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// Records reads every record in the log. A missing log has no records.
func (a *FileAppender) Records() ([]model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var records []model.AuditRecord
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, errclass.ErrAuditChainBroken.WithMessagef("line %d: %v", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

// Verify walks the chain and returns the number of valid records.
func (a *FileAppender) Verify() (int, error) {
	records, err := a.Records()
	if err != nil {
		return 0, err
	}
	var prev model.HashValue
	for i := range records {
		r := &records[i]
		if r.PrevHash != prev {
			return i, errclass.ErrAuditChainBroken.WithMessagef("record %d does not link to record %d", i+1, i)
		}
		want, err := computeRecordHash(r)
		if err != nil {
			return i, err
		}
		if want != r.RecordHash {
			return i, errclass.ErrAuditChainBroken.WithMessagef("record %d hash mismatch", i+1)
		}
		prev = r.RecordHash
	}
	return len(records), nil
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // skip malformed lines
		}
		lastHash = record.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return lastHash, nil
}

// computeRecordHash hashes the record with RecordHash cleared. encoding/json
// emits struct fields in declaration order and map keys sorted, so the
// encoding is stable.
func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	hashRecord := *record
	hashRecord.RecordHash = ""
	if hashRecord.Details != nil {
		// Round-trip so numbers hash the same before and after a reload.
		raw, err := json.Marshal(hashRecord.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details: %w", err)
		}
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return "", fmt.Errorf("normalize details: %w", err)
		}
		hashRecord.Details = generic
	}

	data, err := json.Marshal(&hashRecord)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
