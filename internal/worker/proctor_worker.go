package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/praxislabs/codelab-engine/internal/config"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ProctorWorker consumes persist_proctor_events_queue and bulk-inserts
// proctoring events to PostgreSQL. Events arrive in bursts (a student
// flipping between tabs), so batching pays off here where it would not
// for the attempt trail.
type ProctorWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewProctorWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ProctorWorker {
	return &ProctorWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "proctor_worker").Logger(),
	}
}

// ProctorQueueItem is the queue payload for one proctoring event.
type ProctorQueueItem struct {
	SessionID  string `json:"session_id"`
	StudentID  int    `json:"student_id"`
	ExerciseID string `json:"exercise_id"`
	EventType  string `json:"event_type"`
	Details    string `json:"details"`
	Timestamp  int64  `json:"timestamp"`
}

func (w *ProctorWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctorWorker started")

	buffer := make([]*ProctorQueueItem, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
			// Continue
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistProctorEventsQueue).Result()

		if err != nil {
			if err == redis.Nil {
				continue // Timeout (Queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return // Context cancelled
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process Data
		if len(result) < 2 {
			continue
		}

		var item ProctorQueueItem
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// If JSON is malformed, we cannot retry it. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &item)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *ProctorWorker) flushSafe(ctx context.Context, batch []*ProctorQueueItem) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ProctorWorker) bulkInsert(ctx context.Context, batch []*ProctorQueueItem) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, item := range batch {
		sessionID, err := uuid.Parse(item.SessionID)
		if err != nil {
			// Trigger fallback, which handles the bad UUID individually.
			return err
		}
		rows = append(rows, []interface{}{
			sessionID, item.StudentID, item.ExerciseID, item.EventType, item.Details, time.Unix(item.Timestamp, 0),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"proctor_events"},
		[]string{"session_id", "student_id", "exercise_id", "event_type", "details", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ProctorWorker) fallbackInsert(ctx context.Context, batch []*ProctorQueueItem) {
	requeueList := make([]*ProctorQueueItem, 0)

	for _, item := range batch {
		sessionID, err := uuid.Parse(item.SessionID)
		if err != nil {
			w.log.Error().Str("session_id", item.SessionID).Msg("Dropping proctor event with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO proctor_events (session_id, student_id, exercise_id, event_type, details, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sessionID, item.StudentID, item.ExerciseID, item.EventType, item.Details, time.Unix(item.Timestamp, 0),
		)

		if err != nil {
			// Requeue everything that fails; a connection error should not
			// lose the proctoring trail.
			w.log.Error().Err(err).Int("student_id", item.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, item)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ProctorWorker) requeue(ctx context.Context, items []*ProctorQueueItem) {
	pipe := w.rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Avoid thrashing if the DB is down hard.
		time.Sleep(2 * time.Second)
	}
}

func (w *ProctorWorker) shutdown(buffer []*ProctorQueueItem) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
