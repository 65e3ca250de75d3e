// Package diag collects warnings and informational notices produced while
// processing a batch, so pipeline code never writes to the console directly.
package diag

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Level classifies a diagnostic message.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Message is one diagnostic emitted during a run.
type Message struct {
	Level Level
	Text  string
}

// Sink receives diagnostics from pipeline components. Implementations must
// be safe for concurrent use; export workers share one sink.
type Sink interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Console writes styled diagnostics to a writer. Info messages are dropped
// when Quiet is set; warnings and errors always go through.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
}

// NewConsole returns a console sink writing to w. A nil w means stderr.
func NewConsole(w io.Writer, quiet bool) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{out: w, quiet: quiet}
}

func (c *Console) Infof(format string, args ...any) {
	if c.quiet {
		return
	}
	c.write(infoStyle.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Warnf(format string, args ...any) {
	c.write(warnStyle.Render("WARN: " + fmt.Sprintf(format, args...)))
}

func (c *Console) Errorf(format string, args ...any) {
	c.write(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

func (c *Console) write(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// Recorder keeps every message in memory for assertions in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Infof(format string, args ...any)  { r.record(Info, format, args...) }
func (r *Recorder) Warnf(format string, args ...any)  { r.record(Warn, format, args...) }
func (r *Recorder) Errorf(format string, args ...any) { r.record(Error, format, args...) }

func (r *Recorder) record(level Level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Level: level, Text: fmt.Sprintf(format, args...)})
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Count returns how many messages of the given level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Level == level {
			n++
		}
	}
	return n
}

// Discard ignores everything. Useful as a default.
type Discard struct{}

func (Discard) Infof(string, ...any)  {}
func (Discard) Warnf(string, ...any)  {}
func (Discard) Errorf(string, ...any) {}
