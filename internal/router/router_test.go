package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	gerrors "oscgate/internal/errors"
	"oscgate/internal/events"
	"oscgate/internal/metrics"
	"oscgate/internal/runtime"
	"oscgate/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// spy wraps a Local runtime and records the calls the router makes.
type spy struct {
	*runtime.Local

	mu      sync.Mutex
	calls   []string
	panicOn string
	block   chan struct{} // when set, Evaluate waits on it
}

func newSpy(q *events.Queue) *spy {
	return &spy{Local: runtime.NewLocal(q, nil, runtime.LocalOptions{
		Version: runtime.Version{Name: "v4.5.0", Num: 450},
	})}
}

func (s *spy) record(format string, args ...interface{}) {
	call := fmt.Sprintf(format, args...)
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if s.panicOn != "" && s.panicOn == call {
		panic("spy: " + call)
	}
}

func (s *spy) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spy) Evaluate(code string, o runtime.EvalOptions) error {
	if s.block != nil {
		<-s.block
	}
	s.record("Evaluate(%s, %q)", code, o.Workspace)
	return nil
}

func (s *spy) SaveBuffer(id, content string) error {
	s.record("SaveBuffer(%s, %s)", id, content)
	return nil
}

func (s *spy) ReindentAfterNewline(id, buf string, line, index, first int) error {
	s.record("ReindentAfterNewline(%s, %d, %d, %d)", id, line, index, first)
	return nil
}

func (s *spy) ToggleComment(id, buf string, sel runtime.Selection) error {
	s.record("ToggleComment(%s, %+v)", id, sel)
	return nil
}

func (s *spy) StopJobs() error {
	s.record("StopJobs")
	return nil
}

func (s *spy) Heartbeat(clientID string) error {
	s.record("Heartbeat(%s)", clientID)
	return nil
}

func (s *spy) RecordingSave(filename string) error {
	s.record("RecordingSave(%s)", filename)
	return nil
}

func (s *spy) MidiSystemStart(silent bool) error {
	s.record("MidiSystemStart(%v)", silent)
	return nil
}

func (s *spy) CueServerRestart(open, silent bool) error {
	s.record("CueServerRestart(%v, %v)", open, silent)
	return nil
}

func cmd(name string, args ...interface{}) transport.Command {
	return transport.Command{Name: name, ClientID: "gui", Args: transport.Args(args), Endpoint: "test"}
}

// ── Table ────────────────────────────────────────────────────────────

func TestCommands_Closed(t *testing.T) {
	r := New(newSpy(events.NewQueue()), events.NewQueue(), nil, nil)
	want := []string{
		"/buffer-beautify",
		"/buffer-indent-selection",
		"/buffer-newline-and-indent",
		"/buffer-section-complete-snippet-or-indent-selection",
		"/buffer-section-toggle-comment",
		"/check-for-updates-now",
		"/delete-recording",
		"/disable-update-checking",
		"/enable-update-checking",
		"/exit",
		"/gui-heartbeat",
		"/load-buffer",
		"/midi-reset",
		"/midi-start",
		"/midi-stop",
		"/mixer-amp",
		"/mixer-hpf-disable",
		"/mixer-hpf-enable",
		"/mixer-invert-stereo",
		"/mixer-lpf-disable",
		"/mixer-lpf-enable",
		"/mixer-mono-mode",
		"/mixer-standard-stereo",
		"/mixer-stereo-mode",
		"/osc-port-start",
		"/osc-port-stop",
		"/ping",
		"/run-code",
		"/save-and-run-buffer",
		"/save-buffer",
		"/save-recording",
		"/start-recording",
		"/stop-all-jobs",
		"/stop-recording",
		"/version",
	}
	assert.Equal(t, want, r.Commands())
}

func TestMerge_DuplicatePanics(t *testing.T) {
	noop := func(string, transport.Args) error { return nil }
	assert.Panics(t, func() {
		Merge(Table{"/a": noop}, Table{"/b": noop}, Table{"/a": noop})
	})
	assert.Len(t, Merge(Table{"/a": noop}, Table{"/b": noop}), 2)
}

func TestDispatch_ForwardsToRuntime(t *testing.T) {
	tests := []struct {
		cmd  transport.Command
		want string
	}{
		{cmd("/run-code", "play 60"), `Evaluate(play 60, "")`},
		{cmd("/save-buffer", "ws_0", "play 1"), "SaveBuffer(ws_0, play 1)"},
		{cmd("/buffer-newline-and-indent", "ws_0", "buf", int32(3), int32(4), int32(1)), "ReindentAfterNewline(ws_0, 3, 4, 1)"},
		{cmd("/buffer-section-toggle-comment", "ws_0", "buf", int32(1), int32(2), int32(1), int32(0)),
			"ToggleComment(ws_0, {Start:1 Finish:2 Line:1 Index:0})"},
		{cmd("/stop-all-jobs"), "StopJobs"},
		{cmd("/gui-heartbeat"), "Heartbeat(gui)"},
		{cmd("/save-recording", "take.wav"), "RecordingSave(take.wav)"},
		{cmd("/midi-start", int32(1)), "MidiSystemStart(true)"},
		{cmd("/midi-start", int32(0)), "MidiSystemStart(false)"},
		{cmd("/osc-port-start", int32(0), int32(1)), "CueServerRestart(true, false)"},
		{cmd("/buffer-newline-and-indent", "ws_0", "buf", "3", "4", "1"), "ReindentAfterNewline(ws_0, 3, 4, 1)"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.Name, func(t *testing.T) {
			s := newSpy(events.NewQueue())
			r := New(s, events.NewQueue(), nil, nil)
			require.NoError(t, r.Dispatch(tt.cmd))
			assert.Equal(t, []string{tt.want}, s.Calls())
		})
	}
}

func TestDispatch_SaveAndRun(t *testing.T) {
	s := newSpy(events.NewQueue())
	r := New(s, events.NewQueue(), nil, nil)
	require.NoError(t, r.Dispatch(cmd("/save-and-run-buffer", "ws_1", "play 70", "workspace_one")))
	assert.Equal(t, []string{
		"SaveBuffer(ws_1, play 70)",
		`Evaluate(play 70, "workspace_one")`,
	}, s.Calls())
}

func TestDispatch_Mixer(t *testing.T) {
	q := events.NewQueue()
	s := newSpy(q)
	r := New(s, events.NewQueue(), nil, nil)

	require.NoError(t, r.Dispatch(cmd("/mixer-hpf-enable", float32(120))))
	require.NoError(t, r.Dispatch(cmd("/mixer-amp", float32(0.5), int32(1))))
	require.NoError(t, r.Dispatch(cmd("/mixer-mono-mode")))
	assert.Equal(t, 0, q.Len(), "silent volume change publishes nothing")

	require.Error(t, r.Dispatch(cmd("/mixer-lpf-enable", "loud")))
}

func TestPing_AcksOnce(t *testing.T) {
	rtq, out := events.NewQueue(), events.NewQueue()
	s := newSpy(rtq)
	r := New(s, out, nil, nil)

	ep := transport.NewMem("peer", transport.Options{})
	r.Mount(ep)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ep.Serve(ctx); close(done) }() //nolint:errcheck
	defer func() { cancel(); <-done }()

	require.True(t, ep.Inject(ctx, "/ping", "gui-1", "abc"))
	require.Eventually(t, func() bool { return out.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	e, err := out.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.Ack{ID: "abc"}, e)
	assert.Empty(t, s.Calls(), "ping must not touch the runtime")
	assert.Equal(t, 0, rtq.Len())
	assert.Empty(t, ep.Sent(), "replies go through the pump, not the handler")
}

func TestVersion_EnqueuesReport(t *testing.T) {
	out := events.NewQueue()
	r := New(newSpy(events.NewQueue()), out, nil, nil)
	require.NoError(t, r.Dispatch(cmd("/version")))

	e, err := out.Pop(context.Background())
	require.NoError(t, err)
	v, ok := e.(events.Version)
	require.True(t, ok)
	assert.Equal(t, "v4.5.0", v.Version)
	assert.Equal(t, 450, v.VersionNum)
	assert.False(t, v.LastChecked.IsZero())
}

// ── Isolation ────────────────────────────────────────────────────────

func TestDispatch_BadArgsBecomeFault(t *testing.T) {
	mc := metrics.New()
	r := New(newSpy(events.NewQueue()), events.NewQueue(), nil, mc)

	err := r.Dispatch(cmd("/run-code"))
	var hf *gerrors.HandlerFault
	require.ErrorAs(t, err, &hf)
	assert.Equal(t, "/run-code", hf.Command)
	assert.Equal(t, "gui", hf.Client)
	assert.Equal(t, int64(1), mc.FaultCount())
}

func TestDispatch_PanicBecomesFault(t *testing.T) {
	s := newSpy(events.NewQueue())
	s.panicOn = "StopJobs"
	r := New(s, events.NewQueue(), nil, nil)

	var err error
	assert.NotPanics(t, func() { err = r.Dispatch(cmd("/stop-all-jobs")) })
	var hf *gerrors.HandlerFault
	require.ErrorAs(t, err, &hf)
	assert.Contains(t, hf.Error(), "panic")
}

func TestDispatch_UnknownIgnored(t *testing.T) {
	mc := metrics.New()
	s := newSpy(events.NewQueue())
	r := New(s, events.NewQueue(), nil, mc)
	assert.NoError(t, r.Dispatch(cmd("/reload")))
	assert.Empty(t, s.Calls())
	assert.Equal(t, int64(1), mc.CommandsUnknown())
}

func TestMounted_FaultDoesNotStopEndpoint(t *testing.T) {
	s := newSpy(events.NewQueue())
	s.panicOn = "StopJobs"
	r := New(s, events.NewQueue(), nil, nil)

	ep := transport.NewMem("peer", transport.Options{})
	r.Mount(ep)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ep.Serve(ctx); close(done) }() //nolint:errcheck
	defer func() { cancel(); <-done }()

	ep.Inject(ctx, "/run-code", "gui")      // missing code
	ep.Inject(ctx, "/stop-all-jobs", "gui") // panics
	ep.Inject(ctx, "/gui-heartbeat", "gui")

	require.Eventually(t, func() bool {
		calls := s.Calls()
		return len(calls) == 2 && calls[1] == "Heartbeat(gui)"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMounted_EndpointsIndependent(t *testing.T) {
	s := newSpy(events.NewQueue())
	s.block = make(chan struct{})
	r := New(s, events.NewQueue(), nil, nil)

	a := transport.NewMem("a", transport.Options{})
	b := transport.NewMem("b", transport.Options{})
	r.Mount(a)
	r.Mount(b)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, ep := range []*transport.Mem{a, b} {
		wg.Add(1)
		go func(ep *transport.Mem) {
			defer wg.Done()
			ep.Serve(ctx) //nolint:errcheck
		}(ep)
	}
	defer func() { cancel(); wg.Wait() }()

	a.Inject(ctx, "/run-code", "gui", "sleep 10") // blocks in Evaluate
	b.Inject(ctx, "/stop-all-jobs", "gui")

	require.Eventually(t, func() bool {
		calls := s.Calls()
		return len(calls) == 1 && calls[0] == "StopJobs"
	}, 2*time.Second, 5*time.Millisecond)

	close(s.block)
	require.Eventually(t, func() bool { return len(s.Calls()) == 2 }, 2*time.Second, 5*time.Millisecond)
}
