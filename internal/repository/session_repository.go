package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxislabs/codelab-engine/internal/model"
)

// SessionRepository handles durable session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetByExerciseAndStudent retrieves the session row for a specific
// exercise-student combination.
func (r *SessionRepository) GetByExerciseAndStudent(ctx context.Context, exerciseID string, studentID int) (*model.Session, error) {
	s := &model.Session{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, course_id, exercise_id, mode, status, started_at, finished_at, lock_reason
		 FROM sessions
		 WHERE exercise_id = $1 AND student_id = $2`, exerciseID, studentID,
	).Scan(&s.ID, &s.StudentID, &s.CourseID, &s.ExerciseID, &s.Mode, &s.Status, &s.StartedAt, &s.FinishedAt, &s.LockReason)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new session row (student opens the exercise). The UPSERT
// keeps one row per (exercise, student): re-opening resumes, never forks.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, student_id, course_id, exercise_id, mode, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (exercise_id, student_id) DO UPDATE SET status = sessions.status
		 RETURNING id, started_at`,
		s.ID, s.StudentID, s.CourseID, s.ExerciseID, s.Mode, s.Status,
	).Scan(&s.ID, &s.StartedAt)
}

// UpdateStatus records a state-machine transition on the durable row.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.SessionState) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = $1 WHERE id = $2`, status, id)
	return err
}

// Finish marks a session terminal with an optional lock reason.
func (r *SessionRepository) Finish(ctx context.Context, id uuid.UUID, status model.SessionState, lockReason string) error {
	now := time.Now()
	var reason *string
	if lockReason != "" {
		reason = &lockReason
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $1, lock_reason = $2, finished_at = $3
		 WHERE id = $4`,
		status, reason, now, id)
	return err
}

// ListByStudent retrieves all sessions for a given student.
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, course_id, exercise_id, mode, status, started_at, finished_at, lock_reason
		 FROM sessions
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.StudentID, &s.CourseID, &s.ExerciseID, &s.Mode, &s.Status, &s.StartedAt, &s.FinishedAt, &s.LockReason); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListAttempts retrieves the persisted attempt trail for a session.
func (r *SessionRepository) ListAttempts(ctx context.Context, sessionID uuid.UUID) ([]model.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, attempts_used, last_submitted_at
		 FROM attempt_records
		 WHERE session_id = $1
		 ORDER BY last_submitted_at ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AttemptRecord
	for rows.Next() {
		var rec model.AttemptRecord
		if err := rows.Scan(&rec.QuestionID, &rec.AttemptsUsed, &rec.LastSubmittedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
