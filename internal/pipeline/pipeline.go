// Package pipeline packages the current buffers plus timing and attempt
// metadata into a submission and interprets the backend's verdict.
package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/praxislabs/codelab-engine/internal/courseapi"
	"github.com/praxislabs/codelab-engine/internal/ledger"
	"github.com/praxislabs/codelab-engine/internal/model"
)

// Submitter is the slice of the course API the pipeline needs.
type Submitter interface {
	SubmitAnswer(ctx context.Context, payload *model.SubmissionPayload) error
}

// Outcome classifies a submission result.
type Outcome string

const (
	// OutcomeAccepted: the backend acknowledged the submission; the ledger
	// and progress tracker were advanced.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeAttemptLimit: the backend rejected with the attempt-limit
	// status. The server count is authoritative; the local ledger is not
	// advanced further.
	OutcomeAttemptLimit Outcome = "attempt_limit"
	// OutcomeRetryable: a generic failure; no state was mutated, the
	// student may retry without losing buffer contents.
	OutcomeRetryable Outcome = "retryable"
)

// Local rejection errors (no network call was made).
var (
	ErrAttemptCapReached  = errors.New("attempt cap reached for question")
	ErrSubmissionInFlight = errors.New("submission already in flight for question")
)

// Result is the interpreted outcome of one submission.
type Result struct {
	Outcome       Outcome
	Attempt       model.AttemptRecord
	FinalQuestion bool
}

// Pipeline drives submissions for one session. It is the only mutator of
// the attempt ledger and the progress tracker.
type Pipeline struct {
	api      Submitter
	ledger   *ledger.AttemptLedger
	progress *ledger.ProgressTracker
	desc     model.ExerciseDescriptor

	attemptLimitEnabled bool
	maxAttempts         int

	inFlight map[string]bool
	log      zerolog.Logger

	// onAttempt receives every acknowledged attempt record, used to queue
	// the durable attempt trail.
	onAttempt func(model.AttemptRecord)
}

// Config assembles a pipeline.
type Config struct {
	API                 Submitter
	Ledger              *ledger.AttemptLedger
	Progress            *ledger.ProgressTracker
	Descriptor          model.ExerciseDescriptor
	AttemptLimitEnabled bool
	MaxAttempts         int
	OnAttempt           func(model.AttemptRecord)
	Log                 zerolog.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		api:                 cfg.API,
		ledger:              cfg.Ledger,
		progress:            cfg.Progress,
		desc:                cfg.Descriptor,
		attemptLimitEnabled: cfg.AttemptLimitEnabled,
		maxAttempts:         cfg.MaxAttempts,
		inFlight:            make(map[string]bool),
		onAttempt:           cfg.OnAttempt,
		log:                 cfg.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Begin reserves the in-flight slot for a question. It fails without a
// network call when another submission for the same question is in flight
// (timer expiry racing a manual click must collapse to one call) or when
// the local attempt cap is exhausted. The caller must call the returned
// release func exactly once.
//
// The session controller invokes Begin under its own lock, so the check
// and reservation are atomic with respect to session events.
func (p *Pipeline) Begin(questionID string) (release func(), err error) {
	if p.inFlight[questionID] {
		return nil, ErrSubmissionInFlight
	}
	if !p.ledger.CanSubmit(questionID) {
		return nil, ErrAttemptCapReached
	}
	p.inFlight[questionID] = true
	return func() { delete(p.inFlight, questionID) }, nil
}

// Submit performs the network call and applies the verdict. It must be
// called between Begin and its release, outside the controller lock — the
// call suspends on the network.
func (p *Pipeline) Submit(ctx context.Context, question model.Question, questionIndex int, questions []model.Question, buffers model.SourceBuffers, spentSeconds int) (*Result, error) {
	payload := &model.SubmissionPayload{
		CourseID:            p.desc.CourseID,
		ExerciseID:          p.desc.ExerciseID,
		QuestionID:          question.ID,
		AttemptLimitEnabled: p.attemptLimitEnabled,
		MaxAttempts:         p.maxAttempts,
		EntityID:            p.desc.EntityID,
		EntityType:          p.desc.EntityType,
		Category:            p.desc.Category,
		Subcategory:         p.desc.Subcategory,
		Code:                buffers.EncodeCode(),
		Language:            model.SubmissionLanguage,
		Status:              model.SubmissionStatusSolved,
		SpentTime:           spentSeconds,
	}

	err := p.api.SubmitAnswer(ctx, payload)
	switch {
	case err == nil:
		rec := p.ledger.Record(question.ID)
		p.progress.MarkCompleted(question.ID)
		if p.onAttempt != nil {
			p.onAttempt(rec)
		}
		p.log.Info().
			Str("question_id", question.ID).
			Int("attempts_used", rec.AttemptsUsed).
			Int("spent_time", spentSeconds).
			Msg("Submission acknowledged")
		return &Result{
			Outcome:       OutcomeAccepted,
			Attempt:       rec,
			FinalQuestion: model.IsFinalQuestion(questionIndex, questions),
		}, nil

	case errors.Is(err, courseapi.ErrAttemptLimit):
		// Server count is authoritative; do not advance the ledger.
		p.log.Warn().Str("question_id", question.ID).Msg("Attempt limit reported by backend")
		return &Result{Outcome: OutcomeAttemptLimit}, nil

	default:
		// Recoverable: nothing was mutated, the student may retry.
		p.log.Error().Err(err).Str("question_id", question.ID).Msg("Submission failed")
		return &Result{Outcome: OutcomeRetryable}, err
	}
}
