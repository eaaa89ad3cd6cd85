// Package controller owns the conversational lifecycle: it consumes capture
// frames, arms the wake gate while no session streams, establishes remote
// agent sessions, routes audio both ways, and drives the sleep/wake state
// machine.
//
// All mutable pipeline state is confined to a single run-loop goroutine, so
// state transitions serialize by construction. Commands from other goroutines
// (Wake, Stop) and asynchronous results (connect completion, probe results)
// enter the loop through one command channel.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/localbrain/voicecore/internal/observe"
	"github.com/localbrain/voicecore/internal/playback"
	"github.com/localbrain/voicecore/internal/segmenter"
	"github.com/localbrain/voicecore/internal/tools"
	"github.com/localbrain/voicecore/internal/wake"
	"github.com/localbrain/voicecore/pkg/audio"
	"github.com/localbrain/voicecore/pkg/audio/capture"
	"github.com/localbrain/voicecore/pkg/provider/channel"
)

// ErrSessionActive is returned by Wake when a session is already being
// established or is open and awake.
var ErrSessionActive = errors.New("controller: a session is already active")

// ErrStopped is returned when the controller has reached a terminal state.
var ErrStopped = errors.New("controller: controller is stopped")

// Deps holds all collaborators for a [Controller].
type Deps struct {
	Producer  capture.Producer
	Segmenter *segmenter.Segmenter
	Gate      *wake.Gate
	Channel   channel.Channel
	Queue     *playback.Queue
	Relay     *tools.Relay
	Metrics   *observe.Metrics

	// Session is the template session configuration; tool definitions from
	// Relay are attached at connect time.
	Session channel.SessionConfig
}

// command is a message into the run loop.
type command interface{ isCommand() }

type wakeCmd struct{ reply chan error }

type stopCmd struct{ reply chan error }

type connectedCmd struct {
	sess channel.Session
	err  error
}

type detectionCmd struct{ det *wake.Detection }

func (wakeCmd) isCommand()      {}
func (stopCmd) isCommand()      {}
func (connectedCmd) isCommand() {}
func (detectionCmd) isCommand() {}

// Controller is the session state machine. Exactly one remote session may be
// active per controller instance.
//
// All exported methods are safe for concurrent use.
type Controller struct {
	producer capture.Producer
	seg      *segmenter.Segmenter
	gate     *wake.Gate
	ch       channel.Channel
	queue    *playback.Queue
	relay    *tools.Relay
	metrics  *observe.Metrics
	sessCfg  channel.SessionConfig

	commands    chan command
	transitions chan Transition
	runDone     chan struct{}

	mu      sync.Mutex
	state   State
	reason  string
	started bool

	// run-loop confined state, never touched from outside the loop.
	sess          channel.Session
	probeInFlight bool
}

// New creates a Controller from its collaborators. Call Start to begin
// processing.
func New(deps Deps) (*Controller, error) {
	if deps.Producer == nil || deps.Segmenter == nil || deps.Gate == nil ||
		deps.Channel == nil || deps.Queue == nil {
		return nil, errors.New("controller: producer, segmenter, gate, channel and queue are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &Controller{
		producer:    deps.Producer,
		seg:         deps.Segmenter,
		gate:        deps.Gate,
		ch:          deps.Channel,
		queue:       deps.Queue,
		relay:       deps.Relay,
		metrics:     deps.Metrics,
		sessCfg:     deps.Session,
		commands:    make(chan command, 8),
		transitions: make(chan Transition, 16),
		runDone:     make(chan struct{}),
	}, nil
}

// Start opens the capture stream and starts the run loop. A capture device
// failure is returned directly; the controller stays usable only after a
// successful Start.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("controller: already started")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.producer.Start(ctx); err != nil {
		c.setState(StateFailed, "capture device unavailable")
		close(c.runDone)
		return fmt.Errorf("controller: start capture: %w", err)
	}

	go c.run(ctx)
	return nil
}

// Wake requests an explicit activation: from Idle it begins session
// establishment, from Sleeping it wakes the open session. Returns
// ErrSessionActive when a session is already connecting or awake.
func (c *Controller) Wake(ctx context.Context) error {
	cmd := wakeCmd{reply: make(chan error, 1)}
	if err := c.post(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.runDone:
		return ErrStopped
	}
}

// Stop closes the controller: capture stops, queued playback is dropped, the
// output device is released and any open session is closed before the Closed
// state is published. Idempotent.
func (c *Controller) Stop(ctx context.Context) error {
	cmd := stopCmd{reply: make(chan error, 1)}
	if err := c.post(ctx, cmd); err != nil {
		if errors.Is(err, ErrStopped) {
			return nil
		}
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FailureReason returns the reason recorded with a terminal Failed state.
func (c *Controller) FailureReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Transitions returns a buffered stream of state changes, for display and
// tests. Slow consumers lose transitions rather than stalling the run loop.
func (c *Controller) Transitions() <-chan Transition { return c.transitions }

// Done is closed when the run loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.runDone }

// post delivers a command to the run loop unless it already exited.
func (c *Controller) post(ctx context.Context, cmd command) error {
	select {
	case c.commands <- cmd:
		return nil
	case <-c.runDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── run loop ───────────────────────────────────────────────────────────────────

func (c *Controller) run(ctx context.Context) {
	defer close(c.runDone)

	for {
		var events <-chan channel.Event
		if c.sess != nil {
			events = c.sess.Events()
		}

		select {
		case <-ctx.Done():
			c.teardown(ctx, StateClosed, "context cancelled")
			return

		case cmd := <-c.commands:
			if c.handleCommand(ctx, cmd) {
				return
			}

		case frame, ok := <-c.producer.Frames():
			if !ok {
				c.teardown(ctx, StateFailed, "capture stream ended")
				return
			}
			c.handleFrame(frame)

		case seg := <-c.seg.Candidates():
			c.maybeEvaluate(ctx, seg)

		case evt, ok := <-events:
			if !ok {
				reason := "channel closed"
				if err := c.sess.Err(); err != nil {
					reason = err.Error()
				}
				c.teardown(ctx, StateFailed, reason)
				return
			}
			c.handleEvent(ctx, evt)

		case err := <-c.queue.Errors():
			c.teardown(ctx, StateFailed, fmt.Sprintf("playback device: %v", err))
			return
		}
	}
}

// handleCommand applies one command. It returns true when the run loop must
// exit.
func (c *Controller) handleCommand(ctx context.Context, cmd command) (done bool) {
	switch cmd := cmd.(type) {
	case wakeCmd:
		switch c.State() {
		case StateIdle:
			c.beginConnect(ctx, "user start")
			cmd.reply <- nil
		case StateSleeping:
			c.wakeSession(ctx, "user wake")
			cmd.reply <- nil
		case StateConnecting, StateListening, StateSpeaking:
			cmd.reply <- ErrSessionActive
		default:
			cmd.reply <- ErrStopped
		}

	case stopCmd:
		c.teardown(ctx, StateClosed, "stop requested")
		cmd.reply <- nil
		return true

	case connectedCmd:
		if cmd.err != nil {
			c.teardown(ctx, StateFailed, fmt.Sprintf("connect: %v", cmd.err))
			return true
		}
		if c.State() != StateConnecting {
			// Stop raced the connect; release the late session.
			_ = cmd.sess.Close()
			audio.Drain(cmd.sess.Events())
			return false
		}
		c.sess = cmd.sess

	case detectionCmd:
		c.probeInFlight = false
		if cmd.det == nil {
			return false
		}
		switch c.State() {
		case StateIdle:
			c.metrics.RecordWakeDetection(ctx, StateIdle.String())
			c.seg.Clear()
			c.beginConnect(ctx, "wake phrase detected")
		case StateSleeping:
			c.metrics.RecordWakeDetection(ctx, StateSleeping.String())
			c.seg.Clear()
			c.wakeSession(ctx, "wake phrase detected")
		}
	}
	return false
}

// handleFrame routes one capture frame according to the current state: gated
// states feed the segmenter, streaming states forward to the session.
func (c *Controller) handleFrame(frame audio.Frame) {
	switch c.State() {
	case StateIdle, StateSleeping:
		c.seg.Process(frame)

	case StateListening, StateSpeaking:
		data := frame.Data
		if frame.SampleRate != c.sessionRate() {
			data = audio.ResampleMono16(data, frame.SampleRate, c.sessionRate())
		}
		if err := c.sess.SendAudio(data); err != nil {
			// Transport failures surface through the event channel closing;
			// a send error here is logged and the frame dropped.
			slog.Warn("controller: send audio failed", "err", err)
		}
	}
}

// maybeEvaluate submits a candidate segment to the wake gate off the run
// loop. At most one probe is in flight; further candidates are dropped until
// it resolves.
func (c *Controller) maybeEvaluate(ctx context.Context, seg segmenter.Segment) {
	state := c.State()
	if state != StateIdle && state != StateSleeping {
		return
	}
	if c.probeInFlight {
		return
	}
	c.probeInFlight = true

	go func() {
		det := c.gate.Evaluate(ctx, seg)
		_ = c.post(ctx, detectionCmd{det: det})
	}()
}

func (c *Controller) handleEvent(ctx context.Context, evt channel.Event) {
	switch evt.Kind {
	case channel.KindCreated:
		if c.State() == StateConnecting {
			slog.Info("controller: session established", "handle", evt.Handle)
			c.metrics.ActiveSessions.Add(ctx, 1)
			c.setState(StateListening, "session established")
		}

	case channel.KindSpeechStarted:
		if c.State() == StateListening {
			c.setState(StateSpeaking, "agent speech started")
		}

	case channel.KindSpeechStopped:
		if c.State() == StateSpeaking {
			c.setState(StateListening, "agent speech stopped")
		}

	case channel.KindAudioDelta:
		if c.State() != StateSleeping {
			c.queue.Enqueue(evt.Audio)
		}

	case channel.KindTranscriptDelta:
		slog.Debug("controller: agent transcript", "text", evt.Text)

	case channel.KindSleepDirective:
		c.handleSleepDirective(ctx, evt.Sleeping)

	case channel.KindToolCall:
		c.dispatchToolCall(ctx, evt)

	case channel.KindError:
		slog.Warn("controller: channel error event", "code", evt.Code, "message", evt.Message)
	}
}

// handleSleepDirective applies an agent-decided sleep or wake request.
func (c *Controller) handleSleepDirective(ctx context.Context, sleeping bool) {
	state := c.State()
	if sleeping {
		if state != StateListening && state != StateSpeaking {
			return
		}
		if err := c.sess.SetSleeping(true); err != nil {
			slog.Warn("controller: set sleeping failed", "err", err)
		}
		// Let the current farewell finish playing, drop nothing; new deltas
		// are discarded while Sleeping.
		c.setState(StateSleeping, "sleep directive")
		return
	}
	if state == StateSleeping {
		c.wakeSession(ctx, "wake directive")
	}
}

// dispatchToolCall relays a tool invocation to the relay off the run loop and
// returns the result to the session. Unknown tools and handler failures are
// reported back to the agent as an error payload, not dropped.
func (c *Controller) dispatchToolCall(ctx context.Context, evt channel.Event) {
	if c.relay == nil {
		slog.Warn("controller: tool call without a relay", "tool", evt.Name)
		return
	}
	sess := c.sess

	go func() {
		output, err := c.relay.Execute(ctx, evt.Name, evt.Args)
		if err != nil {
			slog.Warn("controller: tool execution failed", "tool", evt.Name, "err", err)
			output = fmt.Sprintf(`{"error": %q}`, err.Error())
		}
		if err := sess.RelayToolResult(evt.CallID, output); err != nil {
			slog.Warn("controller: relay tool result failed", "tool", evt.Name, "err", err)
		}
	}()
}

// beginConnect transitions to Connecting and dials the channel off the run
// loop; the result re-enters as a connectedCmd.
func (c *Controller) beginConnect(ctx context.Context, reason string) {
	c.setState(StateConnecting, reason)

	cfg := c.sessCfg
	if c.relay != nil {
		cfg.Tools = c.relay.Definitions()
	}

	go func() {
		sess, err := c.ch.Connect(ctx, cfg)
		if perr := c.post(ctx, connectedCmd{sess: sess, err: err}); perr != nil && sess != nil {
			_ = sess.Close()
		}
	}()
}

// wakeSession resumes a sleeping session without a new Connecting step.
func (c *Controller) wakeSession(_ context.Context, reason string) {
	if err := c.sess.SetSleeping(false); err != nil {
		slog.Warn("controller: wake session failed", "err", err)
	}
	c.setState(StateListening, reason)
}

// teardown releases every resource in a fixed order — capture first, then
// playback (dropping unplayed chunks and the output device), then the remote
// session — before publishing the terminal state.
func (c *Controller) teardown(ctx context.Context, to State, reason string) {
	if err := c.producer.Stop(); err != nil {
		slog.Warn("controller: stop capture failed", "err", err)
	}
	if err := c.queue.Close(); err != nil {
		slog.Warn("controller: close playback failed", "err", err)
	}
	if c.sess != nil {
		if err := c.sess.Close(); err != nil {
			slog.Warn("controller: close session failed", "err", err)
		}
		// Close ends the event stream; drain whatever was still buffered so
		// the transport's emit path is never left blocked mid-send.
		audio.Drain(c.sess.Events())
		if c.State().sessionOpen() {
			c.metrics.ActiveSessions.Add(ctx, -1)
		}
		c.sess = nil
	}
	c.setState(to, reason)
}

// setState publishes a state change. Runs only on the run-loop goroutine (or
// before it starts), so transitions never interleave.
func (c *Controller) setState(to State, reason string) {
	c.mu.Lock()
	from := c.state
	if from.terminal() {
		c.mu.Unlock()
		return
	}
	c.state = to
	if to == StateFailed {
		c.reason = reason
	}
	c.mu.Unlock()

	if from == to {
		return
	}

	slog.Info("controller: state transition", "from", from, "to", to, "reason", reason)
	c.metrics.RecordTransition(context.Background(), from.String(), to.String())

	select {
	case c.transitions <- Transition{From: from, To: to, Reason: reason}:
	default:
	}
}

// sessionRate returns the negotiated session sample rate.
func (c *Controller) sessionRate() int {
	if c.sessCfg.SampleRate > 0 {
		return c.sessCfg.SampleRate
	}
	return 24000
}
