package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// FailKind classifies a query processor failure so the session can log it
// with the right shape without ever showing the raw error to the user.
type FailKind string

const (
	// FailGeneration: the language model could not produce SQL.
	FailGeneration FailKind = "generation"
	// FailValidation: the produced SQL was rejected before execution.
	FailValidation FailKind = "validation"
	// FailExecution: the database rejected or failed the query.
	FailExecution FailKind = "execution"
	// FailTimeout: the request ran out of time at any stage.
	FailTimeout FailKind = "timeout"
	// FailInternal: anything the processor did not classify.
	FailInternal FailKind = "internal"
)

// ProcessError is the typed failure a Processor returns.
type ProcessError struct {
	Kind FailKind
	Err  error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("query processing (%s): %v", e.Kind, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an error chain, defaulting to
// FailInternal for unclassified errors.
func KindOf(err error) FailKind {
	var perr *ProcessError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return FailInternal
}

// Processor turns a question plus prior conversation context into a
// natural-language answer. The history slice never contains the question
// being asked.
type Processor interface {
	Process(ctx context.Context, question string, history []Turn) (string, error)
}

// GenericFailureMessage is the fixed user-safe text recorded in place of an
// answer when processing fails. Raw error detail goes to the log only.
const GenericFailureMessage = "Sorry, I ran into a problem answering that. Please try again."

var (
	// ErrEmptyQuestion rejects blank submissions before any history mutation.
	ErrEmptyQuestion = errors.New("question is required")
	// ErrBusy rejects a submission while another is still processing.
	ErrBusy = errors.New("a question is already being processed")
)

// Session owns one conversation: the bounded history and the single-flight
// request/response cycle with the query processor.
type Session struct {
	mu      sync.Mutex
	busy    bool
	history *History
	limit   int
	proc    Processor
	log     zerolog.Logger
}

// NewSession builds a session with an empty history. limit is the maximum
// number of turns retained (and the context window size).
func NewSession(proc Processor, limit int, log zerolog.Logger) *Session {
	return &Session{
		history: NewHistory(),
		limit:   limit,
		proc:    proc,
		log:     log,
	}
}

// Submit runs one question/answer cycle. On success the returned string is
// the assistant's answer; on failure it is GenericFailureMessage and the
// underlying error is returned alongside for callers that need to
// distinguish outcomes. Either way the history invariant (len <= limit)
// holds on return and the conversation remains renderable.
func (s *Session) Submit(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return "", ErrBusy
	}
	s.busy = true
	s.history.Append(Turn{Role: RoleUser, Content: question})
	window := s.history.WindowBeforeLast(s.limit)
	s.mu.Unlock()

	answer, err := s.proc.Process(ctx, question, window)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		s.log.Error().
			Err(err).
			Str("fail_kind", string(KindOf(err))).
			Str("question", question).
			Msg("query processing failed")
		s.history.Append(Turn{Role: RoleAssistant, Content: GenericFailureMessage})
		s.history.TrimFront(s.limit)
		return GenericFailureMessage, err
	}

	s.history.Append(Turn{Role: RoleAssistant, Content: answer})
	s.history.TrimFront(s.limit)
	return answer, nil
}

// Clear resets the history to empty. Safe to call at any time; calling it
// on an already-empty history is a no-op.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history.Len() == 0 {
		return
	}
	s.history.Reset()
	s.log.Info().Msg("chat history cleared")
}

// Turns returns a snapshot of the history for rendering.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.All()
}

// Len reports the current history length.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}
