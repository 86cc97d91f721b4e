// Package pipeline answers questions: retrieve chunks for the question,
// assemble a prompt and generate an answer, tracking progress in an
// immutable State.
package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"compliance-rag-assistant/models"
)

// Stage is a position in the query state machine.
type Stage int

const (
	Idle Stage = iota
	Retrieving
	Generating
	Done
	Failed
)

var stageNames = [...]string{"idle", "retrieving", "generating", "done", "failed"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool { return s == Done || s == Failed }

var (
	ErrInvalidTransition = errors.New("invalid pipeline transition")
	ErrEmptyQuestion     = errors.New("question must not be empty")
)

// State is a snapshot of one query. Transition methods return a new State
// and never modify the receiver, so any snapshot handed out stays valid.
// The zero value is Idle.
type State struct {
	stage    Stage
	question string
	sources  []models.SearchResult
	prompt   string
	answer   string
	err      error
}

func (s State) Stage() Stage     { return s.stage }
func (s State) Question() string { return s.question }
func (s State) Prompt() string   { return s.prompt }
func (s State) Err() error       { return s.err }

// Answer is the full answer once Done, or the text received so far while
// streaming.
func (s State) Answer() string { return s.answer }

// Sources returns a copy of the retrieved chunks, best match first.
func (s State) Sources() []models.SearchResult { return slices.Clone(s.sources) }

func (s State) transitionError(to Stage) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.stage, to)
}

// Submit starts retrieval for question.
func (s State) Submit(question string) (State, error) {
	if s.stage != Idle {
		return s, s.transitionError(Retrieving)
	}
	if question == "" {
		return s, ErrEmptyQuestion
	}
	return State{stage: Retrieving, question: question}, nil
}

// Retrieved records the search results and moves on to generation. An
// empty result set is valid.
func (s State) Retrieved(results []models.SearchResult, prompt string) (State, error) {
	if s.stage != Retrieving {
		return s, s.transitionError(Generating)
	}
	next := s
	next.stage = Generating
	next.sources = slices.Clone(results)
	next.prompt = prompt
	return next, nil
}

// AppendFragment extends the answer buffer with one streamed fragment.
func (s State) AppendFragment(fragment string) (State, error) {
	if s.stage != Generating {
		return s, s.transitionError(Generating)
	}
	next := s
	next.answer = s.answer + fragment
	return next, nil
}

// Complete finishes the query with answer.
func (s State) Complete(answer string) (State, error) {
	if s.stage != Generating {
		return s, s.transitionError(Done)
	}
	next := s
	next.stage = Done
	next.answer = answer
	return next, nil
}

// Fail ends an active query with err, keeping whatever was produced so far.
func (s State) Fail(err error) (State, error) {
	if s.stage != Retrieving && s.stage != Generating {
		return s, s.transitionError(Failed)
	}
	if err == nil {
		err = errors.New("unknown failure")
	}
	next := s
	next.stage = Failed
	next.err = err
	return next, nil
}
