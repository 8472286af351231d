package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/engine"
	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/recovery"
)

func TestDrainChannel(t *testing.T) {
	ch := make(chan engine.RunRecord, 3)
	ch <- engine.RunRecord{GoalID: "1"}
	ch <- engine.RunRecord{GoalID: "2"}
	close(ch)

	var batch []engine.RunRecord
	drainChannel(ch, &batch)

	assert.Len(t, batch, 2)
	assert.Equal(t, "1", batch[0].GoalID)
	assert.Equal(t, "2", batch[1].GoalID)
}

func TestRunQueue(t *testing.T) {
	q := NewRunQueue(1)
	ctx := context.Background()

	require.NoError(t, q.RecordRun(ctx, engine.RunRecord{GoalID: "a"}))
	err := q.RecordRun(ctx, engine.RunRecord{GoalID: "b"})
	assert.ErrorContains(t, err, "run queue full")

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.RecordRun(ctx, engine.RunRecord{GoalID: "c"}), ErrRecorderClosed)

	var got []string
	for r := range q.Runs() {
		got = append(got, r.GoalID)
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestStartRunConsumer(t *testing.T) {
	logger := zap.NewNop()

	t.Run("BatchProcessing", func(t *testing.T) {
		sink := new(MockRunSink)
		q := NewRunQueue(100)
		wg := &sync.WaitGroup{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sink.On("RecordRuns", mock.Anything, mock.MatchedBy(func(runs []engine.RunRecord) bool {
			return len(runs) > 0
		})).Return(nil)

		StartRunConsumer(ctx, wg, q.Runs(), sink, logger)

		// Enough records to fill one batch and leave a remainder for the final drain.
		for i := 0; i < runBatchSize+5; i++ {
			require.NoError(t, q.RecordRun(ctx, engine.RunRecord{GoalID: "test"}))
		}

		q.Close()
		wg.Wait()

		sink.AssertExpectations(t)
		assert.Len(t, sink.persisted(), runBatchSize+5)
	})

	t.Run("PersistErrorsAreLogged", func(t *testing.T) {
		sink := new(MockRunSink)
		q := NewRunQueue(10)
		wg := &sync.WaitGroup{}

		sink.On("RecordRuns", mock.Anything, mock.Anything).Return(errors.New("db down"))

		StartRunConsumer(context.Background(), wg, q.Runs(), sink, logger)
		require.NoError(t, q.RecordRun(context.Background(), engine.RunRecord{GoalID: "1"}))
		q.Close()
		wg.Wait()

		sink.AssertNumberOfCalls(t, "RecordRuns", 1)
	})

	t.Run("ContextCancelDrains", func(t *testing.T) {
		sink := new(MockRunSink)
		runs := make(chan engine.RunRecord, 10)
		wg := &sync.WaitGroup{}
		ctx, cancel := context.WithCancel(context.Background())

		sink.On("RecordRuns", mock.Anything, mock.Anything).Return(nil).Maybe()

		runs <- engine.RunRecord{GoalID: "1"}
		runs <- engine.RunRecord{GoalID: "2"}
		cancel()
		StartRunConsumer(ctx, wg, runs, sink, logger)
		wg.Wait()

		assert.Len(t, sink.persisted(), 2)
	})
}

func TestInitializeHeuristics(t *testing.T) {
	logger := zap.NewNop()

	t.Run("Defaults", func(t *testing.T) {
		h, err := InitializeHeuristics("", logger)
		require.NoError(t, err)
		assert.Equal(t, recovery.KindElementNotFound, h.Classifier.Classify("element not found: #x"))
		assert.Empty(t, h.Critical)
		assert.Equal(t, "amazon", h.Interpreter.Interpret("search for mice on amazon").Domain)
	})

	t.Run("RuleBookOverrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		book := `
error_kinds:
  default: unknown_error
  rules:
    - any: ["kaboom"]
      result: network_error
domains:
  default: general
  rules:
    - any: ["etsy"]
      result: etsy
critical_subgoals: [navigate]
`
		require.NoError(t, os.WriteFile(path, []byte(book), 0o600))

		h, err := InitializeHeuristics(path, logger)
		require.NoError(t, err)
		assert.Equal(t, recovery.KindNetworkError, h.Classifier.Classify("kaboom"))
		assert.Equal(t, recovery.KindUnknown, h.Classifier.Classify("element not found"))
		assert.Equal(t, []string{"navigate"}, h.Critical)

		g := h.Interpreter.Interpret("search for mugs on etsy")
		assert.Equal(t, "etsy", g.Domain)
		assert.Equal(t, goal.TypeSearch, g.Type)
		assert.NotEmpty(t, h.Decomposer.Decompose(g))
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := InitializeHeuristics(filepath.Join(t.TempDir(), "nope.yaml"), logger)
		assert.ErrorContains(t, err, "failed to load rule book")
	})
}

func TestInitializeDBPool_InvalidURL(t *testing.T) {
	_, err := InitializeDBPool(context.Background(), "postgres://localhost:notaport/db", zap.NewNop())
	assert.ErrorContains(t, err, "unable to parse PGX pool config")
}
