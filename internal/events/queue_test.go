package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 10; i++ {
		q.Push(RunBufferIdx{BufferIdx: i})
	}
	assert.Equal(t, 10, q.Len())

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		e, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, RunBufferIdx{BufferIdx: i}, e)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PopWaits(t *testing.T) {
	q := NewQueue()
	got := make(chan Event, 1)
	go func() {
		e, _ := q.Pop(context.Background())
		got <- e
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Exit{})

	select {
	case e := <-got:
		assert.Equal(t, KindExit, e.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestQueue_PopCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	q := NewQueue()
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Job{JobID: p, Action: string(rune('a' + i%26))})
				q.Push(RunBufferIdx{BufferIdx: p*perProducer + i})
			}
		}(p)
	}
	wg.Wait()

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	ctx := context.Background()
	for q.Len() > 0 {
		e, err := q.Pop(ctx)
		require.NoError(t, err)
		r, ok := e.(RunBufferIdx)
		if !ok {
			continue
		}
		p, i := r.BufferIdx/perProducer, r.BufferIdx%perProducer
		assert.Greater(t, i, last[p], "producer %d out of order", p)
		last[p] = i
	}
	for p, l := range last {
		assert.Equal(t, perProducer-1, l, "producer %d lost events", p)
	}
}

func TestPointerHelpers(t *testing.T) {
	assert.Equal(t, 3, *Int(3))
	assert.Equal(t, "x", *String("x"))
}

func TestKinds(t *testing.T) {
	all := []Event{
		Info{}, SyntaxError{}, RuntimeError{}, Incoming{}, MultiMessage{},
		MidiOutPorts{}, MidiInPorts{}, ReplaceBuffer{}, ReplaceBufferIdx{},
		RunBufferIdx{}, ReplaceLines{}, Version{}, AllJobsCompleted{},
		Job{}, Ack{}, Passthrough{}, Exit{},
	}
	seen := make(map[Kind]bool)
	for _, e := range all {
		assert.False(t, seen[e.Kind()], "duplicate kind %s", e.Kind())
		seen[e.Kind()] = true
	}
}
