// Package transcript writes chat turns as NDJSON, one file per user conversation
// plus an optional global stream.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// defaultMaxOpenFiles bounds the per-conversation file handles kept open.
const defaultMaxOpenFiles = 64

// Channels a transcript event can arrive on.
const (
	ChannelHTTP      = "chat_http"
	ChannelStream    = "chat_sse"
	ChannelWebSocket = "chat_ws"
	ChannelCLI       = "chat_cli"
)

// Event is one transcript line.
type Event struct {
	Timestamp      string         `json:"ts"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Channel        string         `json:"channel"`
	Direction      string         `json:"direction"`
	EventType      string         `json:"event_type"`
	ContentRaw     string         `json:"content_raw,omitempty"`
	Content        string         `json:"content,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	// MaxOpenFiles caps cached conversation files; the least recently
	// written one is closed when the cap is reached.
	MaxOpenFiles int
}

// Logger records transcript events.
type Logger interface {
	Log(ev Event)
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(Event)    {}
func (Nop) Close() error { return nil }

// Writer appends events asynchronously. Events are dropped, with a warning,
// when the queue is full so chat requests never block on disk.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	files  *lru.Cache // path -> *os.File
	global *os.File
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// New returns a Writer, or Nop when logging is disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return Nop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = defaultMaxOpenFiles
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global transcript dir: %w", err)
		}
	}

	w := &Writer{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	files, err := lru.NewWithEvict(cfg.MaxOpenFiles, w.closeEvicted)
	if err != nil {
		return nil, fmt.Errorf("create transcript file cache: %w", err)
	}
	w.files = files
	go w.run()
	return w, nil
}

// Log enqueues ev. Missing timestamps and readable content are filled in.
func (w *Writer) Log(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = CleanForReadability(ev.ContentRaw)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- ev:
	default:
		w.logger.Warn("transcript queue full, dropping event", "user_id", ev.UserID, "event_type", ev.EventType)
	}
}

// Close flushes queued events and closes every open file. Close errors of
// conversation files are logged.
func (w *Writer) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})
	<-w.done

	// Purge runs closeEvicted for every cached conversation file.
	w.files.Purge()
	if w.global == nil {
		return nil
	}
	err := w.global.Close()
	w.global = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", w.cfg.GlobalPath, err)
	}
	return nil
}

// OpenFiles reports how many conversation files are currently held open.
func (w *Writer) OpenFiles() int {
	return w.files.Len()
}

func (w *Writer) closeEvicted(key, value any) {
	if err := value.(*os.File).Close(); err != nil {
		w.logger.Warn("failed to close transcript file", "path", key, "error", err)
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for ev := range w.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			w.logger.Warn("failed to marshal transcript event", "error", err)
			continue
		}
		line = append(line, '\n')

		if w.cfg.Enabled {
			w.writeConversation(w.pathFor(ev), line)
		}
		if w.cfg.GlobalEnabled {
			w.writeGlobal(line)
		}
	}
}

func (w *Writer) pathFor(ev Event) string {
	name := ev.ConversationID
	if name == "" {
		name = ev.SessionID
	}
	return filepath.Join(w.cfg.Dir, safeName(ev.UserID, "unknown"), safeName(name, "default")+".ndjson")
}

func (w *Writer) writeConversation(path string, line []byte) {
	var f *os.File
	if v, ok := w.files.Get(path); ok {
		f = v.(*os.File)
	} else {
		f = w.open(path)
		if f == nil {
			return
		}
		w.files.Add(path, f)
	}
	if _, err := f.Write(line); err != nil {
		w.logger.Warn("failed to write transcript line", "path", path, "error", err)
	}
}

func (w *Writer) writeGlobal(line []byte) {
	if w.global == nil {
		if w.global = w.open(w.cfg.GlobalPath); w.global == nil {
			return
		}
	}
	if _, err := w.global.Write(line); err != nil {
		w.logger.Warn("failed to write transcript line", "path", w.cfg.GlobalPath, "error", err)
	}
}

func (w *Writer) open(path string) *os.File {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		w.logger.Warn("failed to create transcript dir", "path", path, "error", err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		w.logger.Warn("failed to open transcript file", "path", path, "error", err)
		return nil
	}
	return f
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeName(s, fallback string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return fallback
	}
	return s
}

var (
	ansiPattern    = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	controlPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
)

// CleanForReadability strips escape sequences and control characters.
func CleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = controlPattern.ReplaceAllString(s, "")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
