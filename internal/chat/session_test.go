package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcessor answers with a canned function and records the context
// window it was handed.
type fakeProcessor struct {
	answer  func(question string) (string, error)
	windows [][]Turn
}

func (f *fakeProcessor) Process(_ context.Context, question string, history []Turn) (string, error) {
	snapshot := make([]Turn, len(history))
	copy(snapshot, history)
	f.windows = append(f.windows, snapshot)
	return f.answer(question)
}

func echoProcessor() *fakeProcessor {
	return &fakeProcessor{answer: func(q string) (string, error) {
		return "answer to: " + q, nil
	}}
}

func newTestSession(proc Processor, limit int) *Session {
	return NewSession(proc, limit, zerolog.Nop())
}

func TestSubmitAppendsPair(t *testing.T) {
	proc := echoProcessor()
	s := newTestSession(proc, 10)

	answer, err := s.Submit(context.Background(), "how many users?")
	require.NoError(t, err)
	assert.Equal(t, "answer to: how many users?", answer)

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "how many users?"}, turns[0])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: answer}, turns[1])
}

func TestHistoryNeverExceedsLimit(t *testing.T) {
	proc := echoProcessor()
	s := newTestSession(proc, 10)

	for n := 1; n <= 12; n++ {
		_, err := s.Submit(context.Background(), fmt.Sprintf("question %d", n))
		require.NoError(t, err)

		want := 2 * n
		if want > 10 {
			want = 10
		}
		assert.Equal(t, want, s.Len(), "after submission %d", n)
	}
}

func TestTrimmingDropsOldestFirst(t *testing.T) {
	proc := echoProcessor()
	s := newTestSession(proc, 10)

	for n := 1; n <= 6; n++ {
		_, err := s.Submit(context.Background(), fmt.Sprintf("question %d", n))
		require.NoError(t, err)
	}

	turns := s.Turns()
	require.Len(t, turns, 10)

	// Pair 1 is gone; pairs 2..6 survive in original order.
	assert.Equal(t, "question 2", turns[0].Content)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "answer to: question 6", turns[9].Content)
	for i, turn := range turns {
		wantRole := RoleUser
		if i%2 == 1 {
			wantRole = RoleAssistant
		}
		assert.Equal(t, wantRole, turn.Role, "turn %d", i)
	}
}

func TestContextWindowExcludesInFlightTurn(t *testing.T) {
	proc := echoProcessor()
	s := newTestSession(proc, 10)

	_, err := s.Submit(context.Background(), "first")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, proc.windows, 2)
	assert.Empty(t, proc.windows[0], "first question has no prior context")

	second := proc.windows[1]
	require.Len(t, second, 2)
	assert.Equal(t, "first", second[0].Content)
	assert.Equal(t, "answer to: first", second[1].Content)
	for _, turn := range second {
		assert.NotEqual(t, "second", turn.Content, "in-flight turn must not appear in the window")
	}
}

func TestContextWindowCappedAtLimit(t *testing.T) {
	proc := echoProcessor()
	s := newTestSession(proc, 10)

	for n := 1; n <= 8; n++ {
		_, err := s.Submit(context.Background(), fmt.Sprintf("question %d", n))
		require.NoError(t, err)
	}

	for i, window := range proc.windows {
		assert.LessOrEqual(t, len(window), 10, "window %d", i)
	}
}

func TestSubmitFailureRecordsGenericTurn(t *testing.T) {
	boom := errors.New("connection refused: db01.internal:5432")
	proc := &fakeProcessor{answer: func(string) (string, error) {
		return "", &ProcessError{Kind: FailExecution, Err: boom}
	}}

	var logged bytes.Buffer
	s := NewSession(proc, 10, zerolog.New(&logged))

	answer, err := s.Submit(context.Background(), "broken question")
	require.Error(t, err)
	assert.Equal(t, GenericFailureMessage, answer)

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, GenericFailureMessage, turns[1].Content)
	assert.NotContains(t, turns[1].Content, "connection refused")

	assert.Contains(t, logged.String(), "connection refused: db01.internal:5432")
	assert.Contains(t, logged.String(), `"level":"error"`)
	assert.Contains(t, logged.String(), `"fail_kind":"execution"`)
}

func TestSubmitFailureStillTrims(t *testing.T) {
	calls := 0
	proc := &fakeProcessor{answer: func(q string) (string, error) {
		calls++
		if calls%2 == 0 {
			return "", &ProcessError{Kind: FailGeneration, Err: errors.New("model unavailable")}
		}
		return "ok: " + q, nil
	}}
	s := newTestSession(proc, 10)

	for n := 1; n <= 9; n++ {
		_, _ = s.Submit(context.Background(), fmt.Sprintf("question %d", n))
		assert.LessOrEqual(t, s.Len(), 10, "after submission %d", n)
	}
}

func TestSubmitEmptyQuestionRejected(t *testing.T) {
	proc := echoProcessor()
	s := newTestSession(proc, 10)

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := s.Submit(context.Background(), input)
		assert.ErrorIs(t, err, ErrEmptyQuestion, "input %q", input)
	}

	assert.Zero(t, s.Len(), "rejected input must not mutate history")
	assert.Empty(t, proc.windows, "rejected input must not reach the processor")
}

func TestClearResetsHistory(t *testing.T) {
	proc := echoProcessor()
	s := newTestSession(proc, 10)

	_, err := s.Submit(context.Background(), "will be cleared")
	require.NoError(t, err)
	require.NotZero(t, s.Len())

	s.Clear()
	assert.Zero(t, s.Len())

	// Idempotent on an already-empty history.
	s.Clear()
	assert.Zero(t, s.Len())
}

func TestSubmitWhileProcessingIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	proc := &fakeProcessor{answer: func(string) (string, error) {
		close(started)
		<-release
		return "slow answer", nil
	}}
	s := newTestSession(proc, 10)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		answer, err := s.Submit(context.Background(), "slow question")
		assert.NoError(t, err)
		assert.Equal(t, "slow answer", answer)
	}()

	<-started
	_, err := s.Submit(context.Background(), "impatient question")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()

	// Only the slow question made it into history.
	assert.Equal(t, 2, s.Len())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, FailTimeout, KindOf(&ProcessError{Kind: FailTimeout, Err: errors.New("deadline")}))
	assert.Equal(t, FailInternal, KindOf(errors.New("anything else")))
	wrapped := fmt.Errorf("outer: %w", &ProcessError{Kind: FailValidation, Err: errors.New("bad sql")})
	assert.Equal(t, FailValidation, KindOf(wrapped))
}
