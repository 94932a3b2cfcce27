// Package convlog is the append-only per-session conversation event log.
// Each session is one JSON-lines file; the log is the source of truth for
// media send counters.
package convlog

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/easeaico/storefront-cs/internal/types"
)

var unsafeChars = regexp.MustCompile(`[^0-9A-Za-z_\-]`)

// Config controls where and whether events are written.
type Config struct {
	Enabled bool
	Dir     string
}

// Meta carries the optional diagnostic fields of a record.
type Meta struct {
	ReplySource string
	RuleID      string
	ModelName   string
}

// Log writes and replays session event files.
type Log struct {
	cfg     Config
	nowFunc func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the log directory when enabled.
func New(cfg Config) (*Log, error) {
	if cfg.Enabled {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("conversation log dir is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create conversation log dir: %w", err)
		}
	}
	return &Log{
		cfg:     cfg,
		nowFunc: time.Now,
		locks:   map[string]*sync.Mutex{},
	}, nil
}

// SetClock replaces the timestamp source.
func (l *Log) SetClock(now func() time.Time) {
	l.nowFunc = now
}

// Enabled reports whether events are persisted.
func (l *Log) Enabled() bool {
	return l != nil && l.cfg.Enabled
}

// FileName returns the file name used for a session id.
func FileName(sessionID string) string {
	name := unsafeChars.ReplaceAllString(strings.TrimSpace(sessionID), "_")
	if name == "" {
		name = "unknown"
	}
	return name + ".jsonl"
}

// Path returns the log file path of a session.
func (l *Log) Path(sessionID string) string {
	return filepath.Join(l.cfg.Dir, FileName(sessionID))
}

func (l *Log) sessionLock(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := FileName(sessionID)
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// Append writes one event. Failures are logged and never returned so that a
// broken disk cannot interrupt a reply.
func (l *Log) Append(sessionID, userHash, eventType string, meta Meta, payload any) {
	if !l.Enabled() {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("failed to encode conversation log payload", "session_id", sessionID, "event_type", eventType, "error", err.Error())
		return
	}
	record := types.LogRecord{
		Timestamp:   l.nowFunc().Format(types.LogTimeLayout),
		SessionID:   sessionID,
		UserIDHash:  userHash,
		EventType:   eventType,
		ReplySource: meta.ReplySource,
		RuleID:      meta.RuleID,
		ModelName:   meta.ModelName,
		Payload:     raw,
	}
	if err := l.write(sessionID, record); err != nil {
		slog.Warn("failed to append conversation log", "session_id", sessionID, "event_type", eventType, "error", err.Error())
	}
}

func (l *Log) write(sessionID string, record types.LogRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	line = append(line, '\n')

	lock := l.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(l.Path(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to write log line: %w", err)
	}
	return nil
}

// Size returns the byte length of a session log, or 0 when it does not exist.
func (l *Log) Size(sessionID string) int64 {
	if !l.Enabled() {
		return 0
	}
	info, err := os.Stat(l.Path(sessionID))
	if err != nil {
		return 0
	}
	return info.Size()
}

// ReadFrom returns the records on complete lines after offset and the offset
// just past the last complete line. A torn trailing line is left for the
// next read; malformed lines are skipped.
func (l *Log) ReadFrom(sessionID string, offset int64) ([]types.LogRecord, int64, error) {
	if !l.Enabled() {
		return nil, offset, nil
	}
	f, err := os.Open(l.Path(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("failed to seek log file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, offset, fmt.Errorf("failed to read log file: %w", err)
	}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, offset, nil
	}
	return parseLines(data[:end+1]), offset + int64(end+1), nil
}

// tailWindow is how many bytes before an offset TailDigest covers.
const tailWindow = 1024

// TailDigest returns a fingerprint of the bytes preceding offset, or "" when
// they cannot be read.
func (l *Log) TailDigest(sessionID string, offset int64) string {
	if !l.Enabled() || offset <= 0 {
		return ""
	}
	f, err := os.Open(l.Path(sessionID))
	if err != nil {
		return ""
	}
	defer f.Close()

	start := max(offset-tailWindow, 0)
	buf := make([]byte, offset-start)
	if _, err := f.ReadAt(buf, start); err != nil {
		return ""
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:8])
}

func parseLines(data []byte) []types.LogRecord {
	var out []types.LogRecord
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec types.LogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// HasAssistantReply reports whether any session log holds an assistant reply
// for userHash.
func (l *Log) HasAssistantReply(userHash string) bool {
	if !l.Enabled() || userHash == "" {
		return false
	}
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		if fileHasReply(filepath.Join(l.cfg.Dir, entry.Name()), userHash) {
			return true
		}
	}
	return false
}

func fileHasReply(path, userHash string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	needle := []byte(userHash)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.Contains(line, needle) {
			continue
		}
		var rec types.LogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.UserIDHash == userHash && rec.EventType == types.EventAssistantReply {
			return true
		}
	}
	return false
}
