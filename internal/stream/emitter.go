// Package stream relays run progress to a caller as server-sent events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/yhlin07/when2meet-mcp-2025/internal/agent/core"
	"github.com/yhlin07/when2meet-mcp-2025/internal/dossier"
)

const DefaultHeartbeat = 25 * time.Second

// ErrTerminated is returned for writes after the terminal frame.
var ErrTerminated = errors.New("stream already terminated")

// ErrDisconnected is returned once the caller's context is done.
var ErrDisconnected = errors.New("stream client disconnected")

// Frame kinds, also used as metric labels.
const (
	KindProgress  = "progress"
	KindPartial   = "partial"
	KindHeartbeat = "heartbeat"
	KindDone      = "done"
	KindError     = "error"
)

type Options struct {
	// Heartbeat is the keep-alive interval; zero uses DefaultHeartbeat.
	Heartbeat time.Duration
	Logger    zerolog.Logger
	Metrics   *core.Metrics
}

// Emitter writes an ordered SSE stream for one run. Writes are serialized,
// and at most one terminal frame is ever written.
type Emitter struct {
	ctx        context.Context
	mu         sync.Mutex
	w          io.Writer
	flusher    http.Flusher
	terminated bool
	writeErr   error

	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	wg       conc.WaitGroup

	progress *progressTracker
	logger   zerolog.Logger
	metrics  *core.Metrics
}

// New wraps w. Frames are flushed after each write when w supports it.
// Nothing is written once ctx is done.
func New(ctx context.Context, w io.Writer, opts Options) *Emitter {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	e := &Emitter{
		ctx:      ctx,
		w:        w,
		interval: opts.Heartbeat,
		stop:     make(chan struct{}),
		progress: newProgressTracker(),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Start launches the heartbeat. It must be paired with Finish, Fail or Close.
func (e *Emitter) Start() {
	e.wg.Go(func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				if err := e.write(KindHeartbeat, ":\n\n", false); err != nil {
					return
				}
			}
		}
	})
}

// stopHeartbeat cancels the timer and waits for it to exit so no keep-alive
// can follow the terminal frame.
func (e *Emitter) stopHeartbeat() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

// Observe implements core.Observer.
func (e *Emitter) Observe(ev core.Event) {
	switch ev.Kind {
	case core.EventPartialOpener:
		_ = e.data(KindPartial, map[string]any{"partial_opener": ev.Text})
	case core.EventPartialQuestion:
		_ = e.data(KindPartial, map[string]any{"partial_question": ev.Text, "question_index": ev.Index})
	default:
		if text := e.progress.message(ev); text != "" {
			_ = e.Progress(text)
		}
	}
}

// Progress writes a human-readable status line.
func (e *Emitter) Progress(text string) error {
	return e.data(KindProgress, map[string]string{"text": text})
}

// Finish writes the single terminal frame for res.
func (e *Emitter) Finish(res core.RunResult) error {
	if res.Outcome == core.OutcomeSuccess && res.Dossier != nil {
		e.stopHeartbeat()
		return e.terminal(KindDone, "", struct {
			Done   bool            `json:"done"`
			Report dossier.Dossier `json:"report"`
		}{Done: true, Report: *res.Dossier})
	}
	msg := res.Reason
	if msg == "" && res.Err != nil {
		msg = res.Err.Error()
	}
	if msg == "" {
		msg = core.ErrNoDossier.Error()
	}
	return e.Fail(msg)
}

// Fail writes an error terminal frame.
func (e *Emitter) Fail(message string) error {
	e.stopHeartbeat()
	return e.terminal(KindError, "error", map[string]string{"error": message})
}

// Close stops the heartbeat without writing anything. Safe to call more
// than once and after Finish.
func (e *Emitter) Close() {
	e.stopHeartbeat()
	e.mu.Lock()
	e.terminated = true
	e.mu.Unlock()
}

// Terminated reports whether the terminal frame has been written.
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

func (e *Emitter) data(kind string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return e.write(kind, fmt.Sprintf("data: %s\n\n", b), false)
}

func (e *Emitter) terminal(kind, event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
		kind, event = KindError, "error"
	}
	frame := fmt.Sprintf("data: %s\n\n", b)
	if event != "" {
		frame = fmt.Sprintf("event: %s\n%s", event, frame)
	}
	return e.write(kind, frame, true)
}

func (e *Emitter) write(kind, frame string, final bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil {
		e.terminated = true
		e.stopOnce.Do(func() { close(e.stop) })
		return ErrDisconnected
	}
	if e.terminated {
		return ErrTerminated
	}
	if final {
		e.terminated = true
	}
	if e.writeErr != nil {
		return e.writeErr
	}
	if _, err := io.WriteString(e.w, frame); err != nil {
		e.writeErr = err
		e.logger.Debug().Err(err).Str("kind", kind).Msg("stream write failed")
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	e.metrics.ObserveStreamEvent(kind)
	return nil
}
