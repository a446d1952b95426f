// Package ledger tracks per-question attempts and overall completion.
package ledger

import (
	"sync"
	"time"

	"github.com/praxislabs/codelab-engine/internal/model"
)

// AttemptLedger counts acknowledged submissions per question and enforces
// the local attempt cap. The server re-validates every submission and
// remains authoritative; a local false-negative is handled by the pipeline,
// never treated as fatal.
type AttemptLedger struct {
	mu           sync.Mutex
	attempts     map[string]*model.AttemptRecord
	limitEnabled bool
	maxAttempts  int
	mode         model.SessionMode
	now          func() time.Time
}

// NewAttemptLedger creates a ledger. The cap applies only when the limit is
// enabled and the session is in assessment mode; practice mode never
// enforces it.
func NewAttemptLedger(mode model.SessionMode, limitEnabled bool, maxAttempts int, now func() time.Time) *AttemptLedger {
	if now == nil {
		now = time.Now
	}
	return &AttemptLedger{
		attempts:     make(map[string]*model.AttemptRecord),
		limitEnabled: limitEnabled,
		maxAttempts:  maxAttempts,
		mode:         mode,
		now:          now,
	}
}

// CanSubmit returns false iff assessment mode, attempt limit enabled, and
// the question has exhausted its attempts.
func (l *AttemptLedger) CanSubmit(questionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mode != model.ModeAssessment || !l.limitEnabled {
		return true
	}
	rec, ok := l.attempts[questionID]
	if !ok {
		return true
	}
	return rec.AttemptsUsed < l.maxAttempts
}

// Record increments the attempt count for a question. Counts are never
// decremented. Only the submission pipeline calls this, on an acknowledged
// submission.
func (l *AttemptLedger) Record(questionID string) model.AttemptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.attempts[questionID]
	if !ok {
		rec = &model.AttemptRecord{QuestionID: questionID}
		l.attempts[questionID] = rec
	}
	rec.AttemptsUsed++
	rec.LastSubmittedAt = l.now()
	return *rec
}

// AttemptsUsed returns the count for a question, zero if none.
func (l *AttemptLedger) AttemptsUsed(questionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.attempts[questionID]; ok {
		return rec.AttemptsUsed
	}
	return 0
}

// MaxAttempts returns the configured cap.
func (l *AttemptLedger) MaxAttempts() int { return l.maxAttempts }

// LimitEnabled reports whether the attempt limit is configured on.
func (l *AttemptLedger) LimitEnabled() bool { return l.limitEnabled }

// Snapshot returns a copy of all attempt records keyed by question ID.
func (l *AttemptLedger) Snapshot() map[string]model.AttemptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]model.AttemptRecord, len(l.attempts))
	for id, rec := range l.attempts {
		out[id] = *rec
	}
	return out
}
