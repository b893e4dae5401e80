// Package auditlog writes the request/response audit trail as JSON lines to a rotating file.
// Response lines are held back until their token counts arrive so each request id gets
// exactly one request line and one response line.
package auditlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/puzpuzpuz/xsync/v4"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/logger"
)

const (
	DefaultMaxSizeMB      = 5
	DefaultPendingTimeout = 30 * time.Second
)

var ErrClosed = errors.New("audit log is closed")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	File           string
	MaxSizeMB      int
	MaxBackups     int
	PendingTimeout time.Duration
}

type pendingEntry struct {
	record     *domain.AuditRecord
	prompt     *int
	completion *int
	timer      *time.Timer
	mu         sync.Mutex
	done       bool
}

func (e *pendingEntry) complete() bool {
	return e.record != nil && e.prompt != nil && e.completion != nil
}

type Logger struct {
	out     io.WriteCloser
	pending *xsync.Map[string, *pendingEntry]
	logger  *logger.StyledLogger
	timeout time.Duration
	mu      sync.Mutex
	closed  atomic.Bool
	written atomic.Int64
}

func New(cfg Config, log *logger.StyledLogger) (*Logger, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("audit log file is required")
	}
	if dir := filepath.Dir(cfg.File); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory %s: %w", dir, err)
		}
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeMB
	}

	out := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		Compress:   false,
	}
	return NewWithWriter(out, cfg.PendingTimeout, log), nil
}

// NewWithWriter is used by tests that want to inspect lines without touching disk
func NewWithWriter(out io.WriteCloser, pendingTimeout time.Duration, log *logger.StyledLogger) *Logger {
	if pendingTimeout <= 0 {
		pendingTimeout = DefaultPendingTimeout
	}
	return &Logger{
		out:     out,
		pending: xsync.NewMap[string, *pendingEntry](),
		logger:  log,
		timeout: pendingTimeout,
	}
}

// LogRequest writes the request line straight away and opens the pending slot the response will merge into
func (l *Logger) LogRequest(rec *domain.AuditRecord) error {
	if l.closed.Load() {
		return ErrClosed
	}
	rec.Type = domain.RecordRequest
	l.pending.LoadOrStore(rec.RequestID, &pendingEntry{})
	return l.write(rec)
}

// LogResponse holds the response line until both token counts are known or the pending timeout fires
func (l *Logger) LogResponse(rec *domain.AuditRecord) {
	rec.Type = domain.RecordResponse
	if l.closed.Load() {
		l.logger.Warn("Audit response after close dropped", "request_id", rec.RequestID)
		return
	}

	entry, _ := l.pending.LoadOrStore(rec.RequestID, &pendingEntry{})

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.done || entry.record != nil {
		l.logger.Warn("Duplicate audit response ignored", "request_id", rec.RequestID)
		return
	}

	entry.record = rec
	if rec.PromptTokens != nil && entry.prompt == nil {
		entry.prompt = rec.PromptTokens
	}
	if rec.CompletionTokens != nil && entry.completion == nil {
		entry.completion = rec.CompletionTokens
	}

	if entry.complete() {
		l.flushLocked(rec.RequestID, entry)
		return
	}

	id := rec.RequestID
	entry.timer = time.AfterFunc(l.timeout, func() {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if entry.done {
			return
		}
		l.logger.Warn("Token counts did not arrive in time, flushing audit response",
			"request_id", id, "timeout", l.timeout)
		l.flushLocked(id, entry)
	})
}

// UpdateTokens merges a partial token update. It returns true once both prompt and completion
// counts are known for the request; updates for an already flushed or unknown id are dropped.
func (l *Logger) UpdateTokens(requestID string, update domain.TokenUpdate) bool {
	entry, ok := l.pending.Load(requestID)
	if !ok {
		l.logger.Warn("Late token update dropped", "request_id", requestID)
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.done {
		l.logger.Warn("Late token update dropped", "request_id", requestID)
		return false
	}

	if update.Prompt != nil {
		entry.prompt = update.Prompt
	}
	if update.Completion != nil {
		entry.completion = update.Completion
	}

	known := entry.prompt != nil && entry.completion != nil
	if entry.complete() {
		l.flushLocked(requestID, entry)
	}
	return known
}

// flushLocked must be called with entry.mu held
func (l *Logger) flushLocked(requestID string, entry *pendingEntry) {
	entry.done = true
	if entry.timer != nil {
		entry.timer.Stop()
	}
	l.pending.Delete(requestID)

	rec := entry.record
	rec.PromptTokens = entry.prompt
	rec.CompletionTokens = entry.completion
	if entry.prompt != nil && entry.completion != nil {
		rec.TotalTokens = domain.IntPtr(*entry.prompt + *entry.completion)
	}

	if err := l.write(rec); err != nil {
		l.logger.Error("Failed to write audit response", "request_id", requestID, "error", err)
	}
}

func (l *Logger) write(rec *domain.AuditRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record %s: %w", rec.RequestID, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(line); err != nil {
		return fmt.Errorf("failed to write audit record %s: %w", rec.RequestID, err)
	}
	l.written.Add(1)
	return nil
}

func (l *Logger) Pending() int {
	return l.pending.Size()
}

func (l *Logger) LinesWritten() int64 {
	return l.written.Load()
}

// Close flushes every held response with whatever counts it has and closes the file
func (l *Logger) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	l.pending.Range(func(id string, entry *pendingEntry) bool {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if entry.done {
			return true
		}
		if entry.record == nil {
			entry.done = true
			l.pending.Delete(id)
			return true
		}
		l.flushLocked(id, entry)
		return true
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
