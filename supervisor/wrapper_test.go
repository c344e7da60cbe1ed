package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guseggert/wrapperconsole/config"
	"github.com/guseggert/wrapperconsole/internal/logging"
	"github.com/guseggert/wrapperconsole/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const echoServer = `
echo booting
echo 'Done (0.1s)! For help, type "help"'
while read line; do
  if [ "$line" = "stop" ]; then echo "Stopping the server"; exit 0; fi
  echo "got $line"
done
`

type recorder struct {
	ch chan protocol.Event
}

func newRecorder() *recorder { return &recorder{ch: make(chan protocol.Event, 1024)} }

func (r *recorder) Publish(ev protocol.Event) { r.ch <- ev }

func (r *recorder) next(t *testing.T) protocol.Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return protocol.Event{}
}

// expect asserts the next events are exactly evs, in order.
func (r *recorder) expect(t *testing.T, evs ...protocol.Event) {
	t.Helper()
	for _, ev := range evs {
		require.Equal(t, ev, r.next(t))
	}
}

// waitFor discards events until ev arrives.
func (r *recorder) waitFor(t *testing.T, ev protocol.Event) {
	t.Helper()
	for r.next(t) != ev {
	}
}

func echoServerConfig() config.Process {
	return config.Process{
		Command:         "sh",
		Args:            []string{"-c", echoServer},
		StopCommand:     "stop",
		OnlinePattern:   `Done \(.*\)!`,
		StoppingPattern: `Stopping (.*) server`,
		StopTimeout:     5 * time.Second,
		Autostart:       true,
	}
}

func runWrapper(t *testing.T, w *Wrapper) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
		close(errCh)
	}()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	return cancel, errCh
}

func submit(t *testing.T, w *Wrapper, target protocol.Target, payload string) {
	t.Helper()
	require.NoError(t, w.Submit(context.Background(), protocol.Command{Target: target, Payload: payload}))
}

func TestWrapperLifecycle(t *testing.T) {
	rec := newRecorder()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	w, err := NewWrapper(echoServerConfig(), rec, WithWrapperMetrics(m))
	require.NoError(t, err)
	assert.Equal(t, protocol.StateOffline, w.State())

	cancel, done := runWrapper(t, w)

	rec.expect(t,
		stateEv("starting"),
		logEv("booting"),
		logEv(`Done (0.1s)! For help, type "help"`),
		stateEv("online"),
	)
	assert.Equal(t, 1.0, metricValue(t, m.Starts))

	submit(t, w, protocol.TargetServer, "hello")
	rec.expect(t, logEv("hello"), logEv("got hello"))

	submit(t, w, protocol.TargetWrapper, "start")
	rec.expect(t, logEv("start"), logEv("server already running!"))

	submit(t, w, protocol.TargetWrapper, "stop")
	rec.expect(t,
		logEv("stop"),
		stateEv("stopping"),
		logEv("Stopping the server"),
		stateEv("offline"),
	)

	submit(t, w, protocol.TargetWrapper, "stop")
	rec.expect(t, logEv("stop"), logEv("server not running!"))

	submit(t, w, protocol.TargetServer, "anyone?")
	rec.expect(t, logEv("anyone?"), logEv("server not running!"))

	submit(t, w, protocol.TargetWrapper, "start")
	rec.expect(t, logEv("start"), stateEv("starting"), logEv("booting"))
	rec.waitFor(t, stateEv("online"))
	assert.Equal(t, 2.0, metricValue(t, m.Starts))

	cancel()
	require.NoError(t, <-done)
	rec.expect(t, stateEv("stopping"), logEv("Stopping the server"), stateEv("offline"))
	assert.Equal(t, protocol.StateOffline, w.State())
}

func TestWrapperRestart(t *testing.T) {
	rec := newRecorder()
	w, err := NewWrapper(echoServerConfig(), rec)
	require.NoError(t, err)
	runWrapper(t, w)
	rec.waitFor(t, stateEv("online"))

	submit(t, w, protocol.TargetWrapper, "restart")
	rec.expect(t,
		logEv("restart"),
		stateEv("stopping"),
		logEv("Stopping the server"),
		stateEv("offline"),
		stateEv("starting"),
		logEv("booting"),
	)
	rec.waitFor(t, stateEv("online"))
}

func TestWrapperRestartWhenOffline(t *testing.T) {
	rec := newRecorder()
	cfg := echoServerConfig()
	cfg.Autostart = false
	w, err := NewWrapper(cfg, rec)
	require.NoError(t, err)
	runWrapper(t, w)

	submit(t, w, protocol.TargetWrapper, "restart")
	rec.expect(t, logEv("restart"), stateEv("starting"), logEv("booting"))
	rec.waitFor(t, stateEv("online"))
}

func TestWrapperStopWithInterrupt(t *testing.T) {
	rec := newRecorder()
	w, err := NewWrapper(config.Process{
		Command:     "sh",
		Args:        []string{"-c", `trap 'echo bye; exit 0' INT; echo ready; while true; do sleep 0.05; done`},
		StopTimeout: 5 * time.Second,
		Autostart:   true,
	}, rec)
	require.NoError(t, err)
	runWrapper(t, w)
	rec.waitFor(t, logEv("ready"))
	require.Eventually(t, func() bool { return w.State() == protocol.StateOnline }, 5*time.Second, 10*time.Millisecond)

	submit(t, w, protocol.TargetWrapper, "stop")
	rec.waitFor(t, stateEv("stopping"))
	rec.expect(t, logEv("bye"), stateEv("offline"))
}

func TestWrapperKillsAfterStopTimeout(t *testing.T) {
	rec := newRecorder()
	w, err := NewWrapper(config.Process{
		Command:     "sh",
		Args:        []string{"-c", `trap '' INT; echo ready; while true; do sleep 0.05; done`},
		StopTimeout: 200 * time.Millisecond,
		Autostart:   true,
	}, rec)
	require.NoError(t, err)
	runWrapper(t, w)
	rec.waitFor(t, logEv("ready"))

	start := time.Now()
	submit(t, w, protocol.TargetWrapper, "stop")
	rec.waitFor(t, stateEv("stopping"))
	rec.waitFor(t, stateEv("offline"))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestWrapperStartFailure(t *testing.T) {
	rec := newRecorder()
	w, err := NewWrapper(config.Process{
		Command:     filepath.Join(t.TempDir(), "missing"),
		StopTimeout: time.Second,
	}, rec)
	require.NoError(t, err)
	runWrapper(t, w)

	submit(t, w, protocol.TargetWrapper, "start")
	rec.expect(t, logEv("start"), stateEv("starting"), stateEv("offline"))
	ev := rec.next(t)
	assert.Equal(t, protocol.EventLog, ev.Type)
	assert.Contains(t, ev.Payload, "starting process")
	assert.Equal(t, protocol.StateOffline, w.State())
}

func TestWrapperStderrAndOutputLog(t *testing.T) {
	rec := newRecorder()
	path := filepath.Join(t.TempDir(), "output.log")
	out := logging.RotatingWriter(path, logging.Config{})
	t.Cleanup(func() { out.Close() })

	w, err := NewWrapper(config.Process{
		Command:     "sh",
		Args:        []string{"-c", `echo out; echo oops 1>&2; printf partial`},
		StopTimeout: time.Second,
		Autostart:   true,
	}, rec, WithOutputLog(out))
	require.NoError(t, err)
	runWrapper(t, w)

	var logs, errs []string
	for {
		ev := rec.next(t)
		if ev == stateEv("offline") {
			break
		}
		switch ev.Type {
		case protocol.EventLog:
			logs = append(logs, ev.Payload)
		case protocol.EventError:
			errs = append(errs, ev.Payload)
		}
	}
	assert.Equal(t, []string{"out", "partial"}, logs)
	assert.Equal(t, []string{"oops"}, errs)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "out\n")
	assert.Contains(t, string(b), "oops\n")
	assert.Contains(t, string(b), "partial")
}

func TestWrapperUnknownCommands(t *testing.T) {
	rec := newRecorder()
	cfg := echoServerConfig()
	cfg.Autostart = false
	w, err := NewWrapper(cfg, rec)
	require.NoError(t, err)

	w.Handle(context.Background(), protocol.Command{Target: protocol.TargetWrapper, Payload: "dance"})
	rec.expect(t, logEv("dance"))
	assert.Empty(t, rec.ch)
	assert.Equal(t, protocol.StateOffline, w.State())
}

func TestNewWrapperRejectsBadPatterns(t *testing.T) {
	_, err := NewWrapper(config.Process{Command: "x", OnlinePattern: "("}, newRecorder())
	require.Error(t, err)
	_, err = NewWrapper(config.Process{Command: "x", StoppingPattern: "[z-a]"}, newRecorder())
	require.Error(t, err)
}
