package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/praxislabs/codelab-engine/internal/config"
)

// AttemptWorker consumes persist_attempts_queue and UPSERTs the attempt
// trail to PostgreSQL. The in-memory ledger stays authoritative for the
// live session; this trail is what survives a restart.
type AttemptWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAttemptWorker creates a new AttemptWorker.
func NewAttemptWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	return &AttemptWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "attempt_worker").Logger(),
	}
}

// AttemptQueueItem is the queue payload for one acknowledged submission.
type AttemptQueueItem struct {
	SessionID    string `json:"session_id"`
	StudentID    int    `json:"student_id"`
	ExerciseID   string `json:"exercise_id"`
	QuestionID   string `json:"question_id"`
	AttemptsUsed int    `json:"attempts_used"`
	SubmittedAt  int64  `json:"submitted_at"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AttemptWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAttemptsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var item AttemptQueueItem
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistAttempt(ctx, &item); err != nil {
		w.log.Error().Err(err).
			Int("student_id", item.StudentID).
			Str("question_id", item.QuestionID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AttemptWorker) persistAttempt(ctx context.Context, item *AttemptQueueItem) error {
	sessionID, err := uuid.Parse(item.SessionID)
	if err != nil {
		return err
	}

	// UPSERT keeps one row per (session, question); attempts_used only ever
	// grows, so a stale retry never rewinds the trail.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO attempt_records (session_id, student_id, exercise_id, question_id, attempts_used, last_submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET attempts_used = GREATEST(attempt_records.attempts_used, EXCLUDED.attempts_used),
		     last_submitted_at = EXCLUDED.last_submitted_at`,
		sessionID, item.StudentID, item.ExerciseID, item.QuestionID,
		item.AttemptsUsed, time.Unix(item.SubmittedAt, 0),
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *AttemptWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAttemptsQueue).Result()
		if err != nil {
			break
		}

		var item AttemptQueueItem
		if err := json.Unmarshal([]byte(result), &item); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistAttempt(ctx, &item); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
