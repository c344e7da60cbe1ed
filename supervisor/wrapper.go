package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/guseggert/wrapperconsole/config"
	"github.com/guseggert/wrapperconsole/protocol"
	"github.com/looplab/fsm"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	eventStart   = "start"
	eventStarted = "started"
	eventStop    = "stop"
	eventStopped = "stopped"

	// waitDelay bounds how long output copying may outlive the child.
	waitDelay = time.Second
)

var (
	ErrRunning    = errors.New("server already running!")
	ErrNotRunning = errors.New("server not running!")
)

// Publisher receives the events produced by the Wrapper.
type Publisher interface {
	Publish(ev protocol.Event)
}

// Wrapper supervises a single child process and turns its output and lifecycle into events.
// Commands are handled one at a time by Run.
type Wrapper struct {
	log      *zap.SugaredLogger
	cfg      config.Process
	pub      Publisher
	metrics  *Metrics
	output   io.Writer
	commands chan protocol.Command

	online   *regexp.Regexp
	stopping *regexp.Regexp
	machine  *fsm.FSM

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}
}

type WrapperOption func(w *Wrapper)

func WithWrapperLogger(l *zap.Logger) WrapperOption {
	return func(w *Wrapper) {
		w.log = l.Named("wrapper").Sugar()
	}
}

func WithWrapperMetrics(m *Metrics) WrapperOption {
	return func(w *Wrapper) {
		w.metrics = m
	}
}

// WithOutputLog copies the child's stdout and stderr to wr.
func WithOutputLog(wr io.Writer) WrapperOption {
	return func(w *Wrapper) {
		w.output = wr
	}
}

func NewWrapper(cfg config.Process, pub Publisher, opts ...WrapperOption) (*Wrapper, error) {
	w := &Wrapper{
		log:      zap.NewNop().Sugar(),
		cfg:      cfg,
		pub:      pub,
		commands: make(chan protocol.Command, 16),
	}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(prometheus.NewRegistry())
	}

	var err error
	if cfg.OnlinePattern != "" {
		if w.online, err = regexp.Compile(cfg.OnlinePattern); err != nil {
			return nil, fmt.Errorf("compiling online pattern: %w", err)
		}
	}
	if cfg.StoppingPattern != "" {
		if w.stopping, err = regexp.Compile(cfg.StoppingPattern); err != nil {
			return nil, fmt.Errorf("compiling stopping pattern: %w", err)
		}
	}

	w.machine = fsm.NewFSM(
		protocol.StateOffline,
		fsm.Events{
			{Name: eventStart, Src: []string{protocol.StateOffline}, Dst: protocol.StateStarting},
			{Name: eventStarted, Src: []string{protocol.StateStarting}, Dst: protocol.StateOnline},
			{Name: eventStop, Src: []string{protocol.StateStarting, protocol.StateOnline}, Dst: protocol.StateStopping},
			{Name: eventStopped, Src: []string{protocol.StateStarting, protocol.StateOnline, protocol.StateStopping}, Dst: protocol.StateOffline},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				w.log.Debugw("state change", "From", e.Src, "To", e.Dst)
				w.pub.Publish(protocol.Event{Type: protocol.EventState, Payload: e.Dst})
			},
		},
	)
	return w, nil
}

// State returns the current lifecycle state.
func (w *Wrapper) State() string { return w.machine.Current() }

func (w *Wrapper) fire(event string) {
	if err := w.machine.Event(context.Background(), event); err != nil {
		w.log.Debugf("ignoring %s event: %s", event, err)
	}
}

// Submit queues a command for Run.
func (w *Wrapper) Submit(ctx context.Context, cmd protocol.Command) error {
	select {
	case w.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles submitted commands until ctx is done, then stops the child.
// It starts the child first when autostart is configured.
func (w *Wrapper) Run(ctx context.Context) error {
	if w.cfg.Autostart {
		if err := w.Start(); err != nil {
			w.publishLog(err.Error())
		}
	}
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), w.cfg.StopTimeout+2*waitDelay)
			defer cancel()
			return w.Shutdown(shutdownCtx)
		case cmd := <-w.commands:
			w.Handle(ctx, cmd)
		}
	}
}

// Handle executes one command. The payload is echoed as a log line first.
// Failures are published as log lines.
func (w *Wrapper) Handle(ctx context.Context, cmd protocol.Command) {
	w.log.Infow("received command", "Target", cmd.Target, "Payload", cmd.Payload)
	w.publishLog(cmd.Payload)

	var err error
	switch cmd.Target {
	case protocol.TargetServer:
		err = w.WriteStdin(cmd.Payload)
	case protocol.TargetWrapper:
		switch cmd.Payload {
		case protocol.WrapperStart:
			err = w.Start()
		case protocol.WrapperRestart:
			err = w.Restart(ctx)
		case protocol.WrapperStop:
			err = w.Stop()
		default:
			w.log.Warnw("unknown wrapper command", "Payload", cmd.Payload)
		}
	default:
		w.log.Warnw("invalid target", "Target", cmd.Target)
	}
	if err != nil {
		w.log.Debugw("command failed", "Error", err)
		w.publishLog(err.Error())
	}
}

func (w *Wrapper) publishLog(line string) {
	w.pub.Publish(protocol.Event{Type: protocol.EventLog, Payload: line})
}

func (w *Wrapper) publishErr(line string) {
	w.pub.Publish(protocol.Event{Type: protocol.EventError, Payload: line})
}

// Start launches the child. It fails with ErrRunning unless the wrapper is offline.
func (w *Wrapper) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cmd != nil || w.State() != protocol.StateOffline {
		return ErrRunning
	}

	cmd := exec.Command(w.cfg.Command, w.cfg.Args...)
	cmd.Dir = w.cfg.WorkingDir
	if len(w.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), w.cfg.Env...)
	}
	cmd.WaitDelay = waitDelay

	stdout := &lineWriter{onLine: w.handleStdout}
	stderr := &lineWriter{onLine: w.publishErr}
	cmd.Stdout = w.withOutputLog(stdout)
	cmd.Stderr = w.withOutputLog(stderr)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}

	w.fire(eventStart)
	w.log.Infow("starting process", "Args", cmd.Args, "Dir", cmd.Dir)
	if err := cmd.Start(); err != nil {
		stdin.Close()
		w.fire(eventStopped)
		return fmt.Errorf("starting process: %w", err)
	}
	w.metrics.Starts.Inc()

	exited := make(chan struct{})
	w.cmd = cmd
	w.stdin = stdin
	w.exited = exited

	if w.online == nil {
		w.fire(eventStarted)
	}

	go func() {
		err := cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			w.log.Debugf("unexpected wait error: %s", err)
		}
		w.log.Infow("process exited", "PID", cmd.Process.Pid, "ExitCode", cmd.ProcessState.ExitCode())

		w.mu.Lock()
		w.cmd = nil
		w.stdin = nil
		w.mu.Unlock()

		w.fire(eventStopped)
		close(exited)
	}()
	return nil
}

func (w *Wrapper) withOutputLog(lw io.Writer) io.Writer {
	if w.output == nil {
		return lw
	}
	return io.MultiWriter(lw, w.output)
}

func (w *Wrapper) handleStdout(line string) {
	w.publishLog(line)
	switch {
	case w.online != nil && w.online.MatchString(line):
		w.fire(eventStarted)
	case w.stopping != nil && w.stopping.MatchString(line):
		w.fire(eventStop)
	}
}

// WriteStdin writes line plus a newline to the child's stdin.
func (w *Wrapper) WriteStdin(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stdin == nil {
		return ErrNotRunning
	}
	if _, err := io.WriteString(w.stdin, line+"\n"); err != nil {
		return fmt.Errorf("writing to stdin: %w", err)
	}
	return nil
}

// Stop asks the child to stop, with the stop command or SIGINT, and kills it if it is
// still running after the stop timeout.
func (w *Wrapper) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := w.State()
	if w.cmd == nil || (state != protocol.StateStarting && state != protocol.StateOnline) {
		return ErrNotRunning
	}
	w.fire(eventStop)

	var err error
	if w.cfg.StopCommand != "" {
		_, err = io.WriteString(w.stdin, w.cfg.StopCommand+"\n")
	} else {
		err = w.cmd.Process.Signal(os.Interrupt)
	}
	if err != nil {
		w.log.Debugf("error requesting stop, killing: %s", err)
		return w.cmd.Process.Kill()
	}

	proc, exited := w.cmd.Process, w.exited
	time.AfterFunc(w.cfg.StopTimeout, func() {
		select {
		case <-exited:
		default:
			w.log.Warnw("process did not stop in time, killing", "PID", proc.Pid)
			_ = proc.Kill()
		}
	})
	return nil
}

// WaitUntilOffline blocks until no child is running or ctx is done.
func (w *Wrapper) WaitUntilOffline(ctx context.Context) error {
	w.mu.Lock()
	exited := w.exited
	running := w.cmd != nil
	w.mu.Unlock()
	if !running {
		return nil
	}
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for process to stop: %w", ctx.Err())
	}
}

// Restart stops a running child, waits for it to exit, then starts it again.
func (w *Wrapper) Restart(ctx context.Context) error {
	state := w.State()
	if state == protocol.StateStarting || state == protocol.StateOnline {
		if err := w.Stop(); err != nil {
			return err
		}
	}
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.StopTimeout+2*waitDelay)
	defer cancel()
	if err := w.WaitUntilOffline(waitCtx); err != nil {
		return err
	}
	return w.Start()
}

// Shutdown stops a running child and waits for it to exit.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	if err := w.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return w.WaitUntilOffline(ctx)
}
