package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"

	"github.com/oshokin/bootstrap-builder/internal/logger"
)

// Reporter receives progress of one task at a time.
type Reporter interface {
	// Start begins a task. A negative total means the size is unknown.
	Start(name string, total int64)
	// Advance records n more units of work.
	Advance(n int64)
	// Finish ends the current task.
	Finish(err error)
}

// Modes accepted by New.
const (
	ModeAuto = "auto"
	ModeBar  = "bar"
	ModeLog  = "log"
	ModeNone = "none"
)

const (
	barWidth = 40
	// logStep is the completion step between two log lines, in percent.
	logStep = 25
)

// New returns the reporter for mode. Auto renders a bar when out is a
// terminal and logs otherwise.
//
//nolint:ireturn // The concrete reporter depends on the mode.
func New(ctx context.Context, mode string, out *os.File) Reporter {
	var w io.Writer = io.Discard
	if out != nil {
		w = out
	}

	switch mode {
	case ModeNone:
		return Noop{}
	case ModeLog:
		return NewLog(ctx)
	case ModeBar:
		return NewBar(w)
	default:
		if out != nil && (isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())) {
			return NewBar(w)
		}

		return NewLog(ctx)
	}
}

// Noop discards progress.
type Noop struct{}

// Start implements Reporter.
func (Noop) Start(string, int64) {}

// Advance implements Reporter.
func (Noop) Advance(int64) {}

// Finish implements Reporter.
func (Noop) Finish(error) {}

// state tracks the current task.
type state struct {
	name    string
	total   int64
	current int64
}

func (s *state) percent() float64 {
	if s.total <= 0 {
		return 0
	}

	return min(float64(s.current)/float64(s.total), 1)
}

// Log writes a line when a task starts, crosses a quarter and finishes.
type Log struct {
	ctx context.Context //nolint:containedctx // Logger carrier only.

	mu     sync.Mutex
	state  state
	logged int
}

// NewLog returns a reporter logging through the logger stored in ctx.
func NewLog(ctx context.Context) *Log {
	return &Log{ctx: ctx}
}

// Start implements Reporter.
func (l *Log) Start(name string, total int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = state{name: name, total: total}
	l.logged = 0

	logger.InfoKV(l.ctx, "Started", "task", name, "bytes", total)
}

// Advance implements Reporter.
func (l *Log) Advance(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.current += n

	step := int(l.state.percent()*100) / logStep * logStep
	if l.state.total <= 0 || step <= l.logged || step >= 100 {
		return
	}

	l.logged = step

	logger.DebugKV(l.ctx, "Progress", "task", l.state.name, "percent", step)
}

// Finish implements Reporter.
func (l *Log) Finish(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		logger.WarnKV(l.ctx, "Failed", "task", l.state.name, "error", err)

		return
	}

	logger.InfoKV(l.ctx, "Finished", "task", l.state.name, "bytes", l.state.current)
}

// Bar redraws a single progress line on a terminal.
type Bar struct {
	out io.Writer

	mu    sync.Mutex
	model progress.Model
	state state
	drawn int
}

// NewBar returns a reporter drawing to out.
func NewBar(out io.Writer) *Bar {
	if out == nil {
		out = io.Discard
	}

	return &Bar{
		out: out,
		model: progress.New(
			progress.WithScaledGradient("#5A56E0", "#EE6FF8"),
			progress.WithWidth(barWidth),
		),
	}
}

// Start implements Reporter.
func (b *Bar) Start(name string, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = state{name: name, total: total}
	b.drawn = -1
	b.draw()
}

// Advance implements Reporter.
func (b *Bar) Advance(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.current += n
	b.draw()
}

// Finish implements Reporter.
func (b *Bar) Finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil && b.state.total > 0 {
		b.state.current = b.state.total
	}

	b.drawn = -1
	b.draw()

	_, _ = fmt.Fprintln(b.out)
}

// draw renders the bar when the visible percentage changed.
func (b *Bar) draw() {
	percent := b.state.percent()

	if int(percent*100) == b.drawn {
		return
	}

	b.drawn = int(percent * 100)

	_, _ = fmt.Fprintf(b.out, "\r%s %s", b.model.ViewAs(percent), b.state.name)
}

// Counter is an io.Writer that advances a reporter by the bytes written.
type Counter struct {
	Reporter Reporter
}

// Write implements io.Writer.
func (c Counter) Write(p []byte) (int, error) {
	c.Reporter.Advance(int64(len(p)))

	return len(p), nil
}
