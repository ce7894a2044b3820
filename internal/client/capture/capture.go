// Package capture turns an acquired camera into one bounded video clip:
// countdown, recording with elapsed ticks, and a hard stop at the maximum
// duration.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/kaushal/pkg/logger"
)

const (
	defaultCountdown   = 3
	defaultMaxDuration = 30 * time.Second
	defaultTick        = time.Second
	eventBuffer        = 64
)

// State of the controller.
type State int

const (
	StateIdle State = iota
	StateReady
	StateCountdown
	StateRecording
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateCountdown:
		return "countdown"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Clip is a finished recording.
type Clip struct {
	Name        string
	ContentType string
	Data        []byte
	Duration    time.Duration
}

// Seconds is the duration rounded up to whole seconds, at least 1.
func (c *Clip) Seconds() int {
	s := int((c.Duration + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// Event is emitted on every tick and once at the end of a run.
type Event struct {
	State     State
	Remaining int
	Elapsed   time.Duration
	// Clip is set on the final event of a successful run.
	Clip *Clip
	// Err is set on the final event of a failed run.
	Err error
}

// Controller drives one Device. Methods are safe for concurrent use.
type Controller struct {
	dev         Device
	countdown   int
	maxDuration time.Duration
	tick        time.Duration
	now         func() time.Time
	log         logger.Logger

	mu       sync.Mutex
	state    State
	buf      *lockedBuffer
	rec      Recorder
	clip     *Clip
	cancel   context.CancelFunc
	stopReq  chan struct{}
	finished chan struct{}
	runErr   error
}

// NewController creates a Controller for dev.
func NewController(dev Device, opts ...Option) *Controller {
	c := &Controller{
		dev:         dev,
		countdown:   defaultCountdown,
		maxDuration: defaultMaxDuration,
		tick:        defaultTick,
		now:         time.Now,
		log:         logger.Named("capture"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Acquire claims the device. On failure the controller stays idle and the
// caller may retry.
func (c *Controller) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateIdle:
	default:
		return nil
	}
	if err := c.dev.Acquire(ctx); err != nil {
		c.log.Warn(ctx, "device acquisition failed", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	c.state = StateReady
	return nil
}

// Start runs the countdown and then records until Stop, the maximum
// duration, device loss, or Close. The returned channel is closed after the
// final event.
func (c *Controller) Start(ctx context.Context) (<-chan Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateReady:
	case StateClosed:
		return nil, ErrClosed
	case StateIdle:
		return nil, ErrNotReady
	default:
		return nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopReq = make(chan struct{}, 1)
	c.finished = make(chan struct{})
	c.buf = &lockedBuffer{}
	c.clip = nil
	c.runErr = nil
	c.state = StateCountdown

	events := make(chan Event, eventBuffer)
	go c.run(runCtx, events, c.stopReq, c.finished)
	return events, nil
}

func (c *Controller) run(ctx context.Context, events chan<- Event, stopReq <-chan struct{}, finished chan struct{}) {
	defer close(events)
	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	end := func(ev Event) {
		close(finished)
		emit(ev)
	}

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for n := c.countdown; n > 0; n-- {
		emit(Event{State: StateCountdown, Remaining: n})
		select {
		case <-ctx.Done():
			c.abandon(ctx.Err())
			close(finished)
			return
		case <-ticker.C:
		}
	}

	c.mu.Lock()
	rec, err := c.dev.Start(ctx, c.buf)
	if err != nil {
		c.setState(StateReady)
		c.runErr = fmt.Errorf("%w: %w", ErrRecordingUnsupported, err)
		c.mu.Unlock()
		c.log.Error(ctx, "encoder start failed", logger.Error(err))
		end(Event{State: StateReady, Err: c.runErr})
		return
	}
	c.rec = rec
	c.setState(StateRecording)
	c.mu.Unlock()
	ticker.Reset(c.tick)
	emit(Event{State: StateRecording})

	var elapsed time.Duration
	for {
		select {
		case <-ctx.Done():
			c.abandon(ctx.Err())
			close(finished)
			return
		case err := <-rec.Lost():
			c.mu.Lock()
			c.rec = nil
			c.buf.Reset()
			c.setState(StateReady)
			c.runErr = fmt.Errorf("%w: %v", ErrDeviceLost, err)
			c.mu.Unlock()
			c.log.Warn(ctx, "device lost while recording", logger.Error(err))
			end(Event{State: StateReady, Err: c.runErr})
			return
		case <-stopReq:
			end(c.finalize(ctx, elapsed))
			return
		case <-ticker.C:
			elapsed += c.tick
			if elapsed >= c.maxDuration {
				c.log.Info(ctx, "maximum duration reached", logger.Duration("max", c.maxDuration))
				end(c.finalize(ctx, c.maxDuration))
				return
			}
			emit(Event{State: StateRecording, Elapsed: elapsed})
		}
	}
}

// finalize stops the encoder and turns the buffer into the clip.
func (c *Controller) finalize(ctx context.Context, elapsed time.Duration) Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.rec.Stop()
	c.rec = nil
	if err != nil {
		c.buf.Reset()
		c.setState(StateReady)
		c.runErr = fmt.Errorf("%w: %w", ErrDeviceLost, err)
		c.log.Warn(ctx, "encoder did not finalize", logger.Error(err))
		return Event{State: StateReady, Err: c.runErr}
	}
	c.clip = &Clip{
		Name:        fmt.Sprintf("clip-%d.webm", c.now().Unix()),
		ContentType: c.dev.ContentType(),
		Data:        c.buf.Bytes(),
		Duration:    elapsed,
	}
	c.setState(StateStopped)
	return Event{State: StateStopped, Elapsed: elapsed, Clip: c.clip}
}

// abandon discards a run ended by Close or a cancelled context.
func (c *Controller) abandon(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		_ = c.rec.Stop()
		c.rec = nil
	}
	c.buf.Reset()
	c.runErr = cause
	c.setState(StateReady)
}

// setState moves to s unless the controller was closed. Callers hold mu.
func (c *Controller) setState(s State) {
	if c.state != StateClosed {
		c.state = s
	}
}

// Stop ends the recording and returns the clip. Calling it again after the
// first stop returns the same clip.
func (c *Controller) Stop() (*Clip, error) {
	c.mu.Lock()
	switch c.state {
	case StateStopped:
		clip := c.clip
		c.mu.Unlock()
		return clip, nil
	case StateRecording:
	default:
		c.mu.Unlock()
		return nil, ErrNotRecording
	}
	select {
	case c.stopReq <- struct{}{}:
	default:
	}
	finished := c.finished
	c.mu.Unlock()

	<-finished
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clip == nil {
		return nil, c.runErr
	}
	return c.clip, nil
}

// Retake discards the finished clip so Start can run again.
func (c *Controller) Retake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStopped {
		return ErrNotRecording
	}
	c.clip = nil
	c.buf.Reset()
	c.state = StateReady
	return nil
}

// Close stops any run and releases the device from any state.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	cancel, finished := c.cancel, c.finished
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-finished
	}
	return c.dev.Release()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
