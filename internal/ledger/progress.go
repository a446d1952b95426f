package ledger

import (
	"math"
	"sync"
)

// ProgressTracker records which questions have an acknowledged submission
// and computes the completion percentage.
type ProgressTracker struct {
	mu        sync.Mutex
	completed map[string]struct{}
	total     int
}

// NewProgressTracker creates a tracker over total questions.
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{
		completed: make(map[string]struct{}),
		total:     total,
	}
}

// MarkCompleted records a submission for the question. Idempotent.
func (p *ProgressTracker) MarkCompleted(questionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[questionID] = struct{}{}
}

// IsCompleted reports whether the question has a recorded submission.
func (p *ProgressTracker) IsCompleted(questionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.completed[questionID]
	return ok
}

// CompletedCount returns the number of completed questions.
func (p *ProgressTracker) CompletedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.completed)
}

// Percent returns the rounded completion percentage.
func (p *ProgressTracker) Percent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return 0
	}
	return int(math.Round(float64(len(p.completed)) / float64(p.total) * 100))
}

// AllCompleted reports whether every question has a recorded submission.
func (p *ProgressTracker) AllCompleted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total > 0 && len(p.completed) >= p.total
}
