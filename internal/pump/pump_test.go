package pump

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
	"oscgate/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type strange struct{}

func (strange) Kind() events.Kind { return "strange" }

type fixture struct {
	pump    *Pump
	peer    *transport.Mem
	ws      *transport.Mem
	metrics *metrics.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		peer:    transport.NewMem("peer", transport.Options{}),
		ws:      transport.NewMem("ws", transport.Options{}),
		metrics: metrics.New(),
	}
	f.pump = New(Options{
		Peer:      f.peer,
		WebSocket: f.ws,
		Platform:  func() string { return "testos" },
		Metrics:   f.metrics,
	})
	return f
}

// drain pushes evs followed by Exit and runs the pump to completion.
func (f *fixture) drain(t *testing.T, evs ...events.Event) []transport.Sent {
	t.Helper()
	for _, e := range evs {
		f.pump.Push(e)
	}
	f.pump.Push(events.Exit{})
	runWithin(t, f.pump, context.Background())
	sent := f.peer.Sent()
	require.NotEmpty(t, sent)
	require.Equal(t, "/exited", sent[len(sent)-1].Address)
	return sent[:len(sent)-1]
}

func runWithin(t *testing.T, p *Pump, ctx context.Context) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not stop")
	}
}

func args(a ...interface{}) []interface{} { return a }

func TestTranslate(t *testing.T) {
	checked := time.Date(2024, time.March, 7, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		event   events.Event
		address string
		args    []interface{}
	}{
		{"info", events.Info{Style: 1, Text: "hello"}, "/log/info", args(1, "hello")},
		{"info defaults", events.Info{}, "/log/info", args(0, "")},
		{
			"syntax error",
			events.SyntaxError{JobID: 3, Description: "bad", ErrorLine: "play(", Line: events.Int(4)},
			"/syntax_error", args(3, "bad", "play(", 4, "4"),
		},
		{
			"syntax error unknown line",
			events.SyntaxError{JobID: 3, Description: "bad"},
			"/syntax_error", args(3, "bad", "", -1, "-1"),
		},
		{
			"runtime error",
			events.RuntimeError{JobID: 2, Description: "boom", Backtrace: []string{"a", "b"}},
			"/error", args(2, "boom", "a\nb", -1),
		},
		{
			"incoming",
			events.Incoming{Time: "12:00", ID: 7, Address: "/foo", Args: "[1, 2]"},
			"/incoming/osc", args("12:00", 7, "/foo", "[1, 2]"),
		},
		{
			"multi message",
			events.MultiMessage{JobID: 1, ThreadName: "live", Runtime: "0.5", Values: []events.LogValue{{Style: 0, Text: "x"}, {Style: 2, Text: "y"}}},
			"/log/multi_message", args(1, `"live"`, "0.5", 2, 0, "x", 2, "y"),
		},
		{"midi out", events.MidiOutPorts{Ports: []string{"a", "b"}}, "/midi/out-ports", args("a\nb")},
		{"midi in", events.MidiInPorts{}, "/midi/in-ports", args("")},
		{
			"replace buffer",
			events.ReplaceBuffer{BufferID: "ws0", Content: events.String("play 60"), Line: 1, Index: 2, FirstLine: 0},
			"/buffer/replace", args("ws0", "play 60", 1, 2, 0),
		},
		{
			"replace buffer placeholder",
			events.ReplaceBuffer{BufferID: "ws0"},
			"/buffer/replace", args("ws0", "Internal error within a fn calling replace-buffer without a :val payload", 0, 0, 0),
		},
		{
			"replace buffer idx",
			events.ReplaceBufferIdx{BufferIdx: 2},
			"/buffer/replace-idx", args(2, "Internal error within a fn calling replace-buffer-idx without a :val payload", 0, 0, 0),
		},
		{"run buffer idx", events.RunBufferIdx{BufferIdx: 5}, "/buffer/run-idx", args(5)},
		{
			"replace lines defaults",
			events.ReplaceLines{BufferID: "ws1", Content: events.String("x"), PointLine: 9, PointIndex: 3},
			"/buffer/replace-lines", args("ws1", "x", 9, 9, 9, 3),
		},
		{
			"replace lines range",
			events.ReplaceLines{BufferID: "ws1", StartLine: events.Int(2), FinishLine: events.Int(4)},
			"/buffer/replace-lines", args("ws1", "Internal error within a fn calling replace-line without a :val payload", 2, 4, 0, 0),
		},
		{
			"version",
			events.Version{Version: "4.5", VersionNum: 450, LatestVersion: "4.6", LatestVersionNum: 460, LastChecked: checked},
			"/version", args("4.5", 450, "4.6", 460, 7, 3, 2024, "testos"),
		},
		{
			"version with platform",
			events.Version{Version: "4.5", LastChecked: checked, Platform: "plan9"},
			"/version", args("4.5", 0, "", 0, 7, 3, 2024, "plan9"),
		},
		{"all completed", events.AllJobsCompleted{}, "/runs/all-completed", nil},
		{"ack", events.Ack{ID: "gui"}, "/ack", args("gui")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sent := f.drain(t, tt.event)
			require.Len(t, sent, 1)
			assert.Equal(t, tt.address, sent[0].Address)
			assert.Equal(t, tt.args, sent[0].Args)
		})
	}
}

func TestEscapesMarkup(t *testing.T) {
	f := newFixture(t)
	sent := f.drain(t,
		events.SyntaxError{Description: "<script>alert(1)</script>", ErrorLine: "<b>"},
		events.RuntimeError{Description: "a & b", Backtrace: []string{"<x>", "y"}},
	)
	require.Len(t, sent, 2)
	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", sent[0].Args[1])
	assert.Equal(t, "&lt;b&gt;", sent[0].Args[2])
	assert.Equal(t, "a &amp; b", sent[1].Args[1])
	assert.Equal(t, "&lt;x&gt;\ny", sent[1].Args[2])
}

func TestJobProducesNoTraffic(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.drain(t, events.Job{JobID: 1, Action: "completed"}))
	assert.Empty(t, f.ws.Sent())
}

func TestPassthroughGoesToWebSocket(t *testing.T) {
	f := newFixture(t)
	sent := f.drain(t, events.Passthrough{Path: "/cue/foo", Body: args(1, "x")})
	assert.Empty(t, sent)
	require.Len(t, f.ws.Sent(), 1)
	assert.Equal(t, transport.Sent{Address: "/cue/foo", Args: args(1, "x")}, f.ws.Sent()[0])
}

func TestPassthroughWithoutWebSocketIsDropped(t *testing.T) {
	peer := transport.NewMem("peer", transport.Options{})
	p := New(Options{Peer: peer})
	p.Push(events.Passthrough{Path: "/cue/foo"})
	p.Push(events.Exit{})
	runWithin(t, p, context.Background())
	require.Len(t, peer.Sent(), 1)
	assert.Equal(t, "/exited", peer.Sent()[0].Address)
}

func TestMalformedEventSkipped(t *testing.T) {
	f := newFixture(t)
	sent := f.drain(t,
		events.ReplaceBuffer{Content: events.String("x")},
		events.RuntimeError{Description: "no trace"},
		events.Incoming{},
		events.MultiMessage{},
		events.ReplaceLines{},
		events.Version{},
		events.Passthrough{},
		events.Info{Text: "still alive"},
	)
	require.Len(t, sent, 1)
	assert.Equal(t, "/log/info", sent[0].Address)
	assert.EqualValues(t, 7, f.metrics.FaultCount())
}

func TestUnknownKindDropped(t *testing.T) {
	f := newFixture(t)
	sent := f.drain(t, strange{}, events.Ack{ID: "x"})
	require.Len(t, sent, 1)
	assert.Equal(t, "/ack", sent[0].Address)
	assert.EqualValues(t, 1, f.metrics.EventsDropped())
}

func TestNilEventsDropped(t *testing.T) {
	f := newFixture(t)
	var typedNil *events.Info
	sent := f.drain(t, nil, typedNil, events.Info{Text: "after"})
	require.Len(t, sent, 1)
	assert.Equal(t, "/log/info", sent[0].Address)
	assert.Equal(t, args(0, "after"), sent[0].Args)
	assert.EqualValues(t, 2, f.metrics.EventsDropped())
	assert.Zero(t, f.metrics.FaultCount())
	assert.Equal(t, Stopped, f.pump.State())
}

func TestKindOf(t *testing.T) {
	var typedNil *events.Info
	assert.Equal(t, "<nil>", kindOf(nil))
	assert.Equal(t, "*events.Info", kindOf(typedNil))
	assert.Equal(t, "strange", kindOf(strange{}))
}

func TestSendFailureDoesNotStopPump(t *testing.T) {
	f := newFixture(t)
	f.peer.FailSends(gerrors.ErrNotConnected)
	f.pump.Push(events.Info{Text: "a"})
	f.pump.Push(events.Info{Text: "b"})
	f.pump.Push(events.Exit{})
	runWithin(t, f.pump, context.Background())

	sent := f.peer.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "/exited", sent[2].Address)
	assert.EqualValues(t, 3, f.metrics.SendFailures())
	assert.Equal(t, Stopped, f.pump.State())
}

func TestExitStopsProcessing(t *testing.T) {
	f := newFixture(t)
	sent := f.drain(t, events.Info{Text: "before"})
	f.pump.Push(events.Info{Text: "after"})

	select {
	case <-f.pump.Done():
	default:
		t.Fatal("Done should be closed after Exit")
	}
	assert.Equal(t, Stopped, f.pump.State())
	require.Len(t, sent, 1)
	assert.Len(t, f.peer.Sent(), 2, "events after Exit are never sent")
}

func TestExitNoticeSentOnce(t *testing.T) {
	f := newFixture(t)
	f.pump.Push(events.Exit{})
	f.pump.Push(events.Exit{})
	runWithin(t, f.pump, context.Background())

	var exited int
	for _, s := range f.peer.Sent() {
		if s.Address == "/exited" {
			exited++
		}
	}
	assert.Equal(t, 1, exited)
}

func TestCancelBehavesLikeExit(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	assert.Equal(t, Running, f.pump.State())

	done := make(chan struct{})
	go func() {
		f.pump.Run(ctx)
		close(done)
	}()
	f.pump.Push(events.Info{Text: "x"})
	require.Eventually(t, func() bool { return len(f.peer.Sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	sent := f.peer.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "/exited", sent[1].Address)
	assert.Equal(t, Stopped, f.pump.State())
}

func TestConcurrentProducersKeepOrder(t *testing.T) {
	f := newFixture(t)
	const producers, perProducer = 6, 200

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.pump.Run(ctx)
		close(done)
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				f.pump.Push(events.Info{Style: p, Text: fmt.Sprint(i)})
			}
		}(p)
	}
	wg.Wait()
	f.pump.Push(events.Exit{})
	<-done

	sent := f.peer.Sent()
	require.Len(t, sent, producers*perProducer+1)
	next := make([]int, producers)
	for _, s := range sent[:len(sent)-1] {
		p := s.Args[0].(int)
		assert.Equal(t, fmt.Sprint(next[p]), s.Args[1], "producer %d out of order", p)
		next[p]++
	}
	for p := range next {
		assert.Equal(t, perProducer, next[p])
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown", State(9).String())
}
