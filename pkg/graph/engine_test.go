package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	visits []string
	hops   int
}

func visitNode(name string) Node[*testState] {
	return NodeFunc[*testState]{ID: name, Fn: func(_ context.Context, s *testState) error {
		s.visits = append(s.visits, name)
		return nil
	}}
}

func TestLinearRun(t *testing.T) {
	eng, err := NewBuilder[*testState](Options{MaxSteps: 10}).
		AddNode(visitNode("a")).
		AddNode(visitNode("b")).
		AddNode(visitNode("c")).
		StartAt("a").
		Connect("a", "b").
		Connect("b", "c").
		Connect("c", End).
		Build()
	require.NoError(t, err)

	st := &testState{}
	require.NoError(t, eng.Run(context.Background(), "run-1", st))
	assert.Equal(t, []string{"a", "b", "c"}, st.visits)
}

func TestConditionalRouting(t *testing.T) {
	bump := NodeFunc[*testState]{ID: "loop", Fn: func(_ context.Context, s *testState) error {
		s.hops++
		return nil
	}}

	eng, err := NewBuilder[*testState](Options{MaxSteps: 20}).
		AddNode(bump).
		AddNode(visitNode("done")).
		StartAt("loop").
		ConnectIf("loop", "done", func(s *testState) bool { return s.hops >= 3 }).
		Connect("loop", "loop").
		Connect("done", End).
		Build()
	require.NoError(t, err)

	st := &testState{}
	require.NoError(t, eng.Run(context.Background(), "run-1", st))
	assert.Equal(t, 3, st.hops)
	assert.Equal(t, []string{"done"}, st.visits)
}

func TestStepLimit(t *testing.T) {
	eng, err := NewBuilder[*testState](Options{MaxSteps: 5}).
		AddNode(visitNode("spin")).
		StartAt("spin").
		Connect("spin", "spin").
		Build()
	require.NoError(t, err)

	st := &testState{}
	err = eng.Run(context.Background(), "run-1", st)
	require.ErrorIs(t, err, ErrStepLimitExceeded)
	// Exactly MaxSteps transitions happened before the trip.
	assert.Len(t, st.visits, 5)
}

func TestNodeErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	eng, err := NewBuilder[*testState](Options{MaxSteps: 10}).
		AddNode(visitNode("a")).
		AddNode(NodeFunc[*testState]{ID: "b", Fn: func(context.Context, *testState) error { return boom }}).
		StartAt("a").
		Connect("a", "b").
		Connect("b", End).
		Build()
	require.NoError(t, err)

	runErr := eng.Run(context.Background(), "run-1", &testState{})
	require.ErrorIs(t, runErr, boom)
	assert.Contains(t, runErr.Error(), "node b")
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng, err := NewBuilder[*testState](Options{MaxSteps: 0}).
		AddNode(NodeFunc[*testState]{ID: "spin", Fn: func(_ context.Context, s *testState) error {
			s.hops++
			if s.hops == 2 {
				cancel()
			}
			return nil
		}}).
		StartAt("spin").
		Connect("spin", "spin").
		Build()
	require.NoError(t, err)

	st := &testState{}
	runErr := eng.Run(ctx, "run-1", st)
	require.ErrorIs(t, runErr, context.Canceled)
	assert.Equal(t, 2, st.hops)
}

func TestBuildValidation(t *testing.T) {
	t.Run("missing start", func(t *testing.T) {
		_, err := NewBuilder[*testState](Options{}).AddNode(visitNode("a")).Build()
		assert.ErrorContains(t, err, "start node not set")
	})

	t.Run("unknown start", func(t *testing.T) {
		_, err := NewBuilder[*testState](Options{}).AddNode(visitNode("a")).StartAt("zzz").Build()
		assert.ErrorContains(t, err, "not registered")
	})

	t.Run("duplicate node", func(t *testing.T) {
		_, err := NewBuilder[*testState](Options{}).
			AddNode(visitNode("a")).
			AddNode(visitNode("a")).
			StartAt("a").
			Build()
		assert.ErrorContains(t, err, "duplicate node")
	})

	t.Run("edge to unknown node", func(t *testing.T) {
		_, err := NewBuilder[*testState](Options{}).
			AddNode(visitNode("a")).
			StartAt("a").
			Connect("a", "ghost").
			Build()
		assert.ErrorContains(t, err, "unknown node")
	})

	t.Run("no route out", func(t *testing.T) {
		eng, err := NewBuilder[*testState](Options{}).
			AddNode(visitNode("a")).
			StartAt("a").
			Build()
		require.NoError(t, err)
		assert.ErrorContains(t, eng.Run(context.Background(), "r", &testState{}), "no route")
	})
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) NodeStarted(runID, node string, step int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "start:"+node)
}

func (o *recordingObserver) NodeFinished(runID, node string, step int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "finish:"+node)
}

func (o *recordingObserver) Routed(runID, from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "route:"+from+">"+to)
}

func TestObserverEvents(t *testing.T) {
	eng, err := NewBuilder[*testState](Options{MaxSteps: 10}).
		AddNode(visitNode("a")).
		AddNode(visitNode("b")).
		StartAt("a").
		Connect("a", "b").
		Connect("b", End).
		Build()
	require.NoError(t, err)

	obs := &recordingObserver{}
	eng.SetObserver(obs)
	require.NoError(t, eng.Run(context.Background(), "run-1", &testState{}))

	assert.Equal(t, []string{
		"start:a", "finish:a", "route:a>b",
		"start:b", "finish:b", "route:b>END",
	}, obs.events)
}
