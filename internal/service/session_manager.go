package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/praxislabs/codelab-engine/internal/compiler"
	"github.com/praxislabs/codelab-engine/internal/config"
	"github.com/praxislabs/codelab-engine/internal/courseapi"
	"github.com/praxislabs/codelab-engine/internal/model"
	"github.com/praxislabs/codelab-engine/internal/policy"
	"github.com/praxislabs/codelab-engine/internal/repository"
	"github.com/praxislabs/codelab-engine/internal/session"
	"github.com/praxislabs/codelab-engine/internal/worker"
)

// ErrSessionNotFound is returned when no live session matches the given ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionManager owns the live session controllers. One live session per
// (student, exercise): re-opening an exercise the student already has a
// live session for returns that session instead of forking a second one.
type SessionManager struct {
	mu       sync.Mutex
	byKey    map[string]*session.Controller
	byID     map[uuid.UUID]*session.Controller
	watchers map[uuid.UUID]map[chan session.Event]struct{}

	repo *repository.SessionRepository
	rdb  *redis.Client
	api  *courseapi.Client
	cfg  *config.Config
	log  zerolog.Logger
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(
	repo *repository.SessionRepository,
	rdb *redis.Client,
	api *courseapi.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionManager {
	return &SessionManager{
		byKey:    make(map[string]*session.Controller),
		byID:     make(map[uuid.UUID]*session.Controller),
		watchers: make(map[uuid.UUID]map[chan session.Event]struct{}),
		repo:     repo,
		rdb:      rdb,
		api:      api,
		cfg:      cfg,
		log:      log.With().Str("component", "session_manager").Logger(),
	}
}

func liveKey(exerciseID string, studentID int) string {
	return fmt.Sprintf("%s:%d", exerciseID, studentID)
}

// Open creates or resumes the live session for (student, exercise). The
// durable row is upserted, the start time is cached in Redis, and the
// controller runs its mount-time status check before Open returns.
func (m *SessionManager) Open(ctx context.Context, studentID int, req *model.StartSessionRequest) (*session.Controller, error) {
	key := liveKey(req.ExerciseID, studentID)

	m.mu.Lock()
	if existing, ok := m.byKey[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	var ctrl *session.Controller
	ctrl = session.New(session.Config{
		StudentID:           studentID,
		Descriptor:          req.ExerciseDescriptor,
		Questions:           req.Questions,
		RawSettings:         req.Settings,
		AttemptLimitEnabled: req.AttemptLimitEnabled,
		MaxAttempts:         req.MaxAttempts,
		UseToolkit:          req.UseToolkit,
		StatusAPI:           m.api,
		SubmitAPI:           m.api,
		SettleWindow:        m.cfg.CompileSettleWindow,
		RedirectDelay:       m.cfg.RedirectDelay,
		SmokeRunner:         compiler.NewSmokeRunner(m.cfg.SmokeTimeout),
		OnEvent: func(e session.Event) {
			m.broadcast(ctrl.ID(), e)
		},
		OnAttempt: func(rec model.AttemptRecord) {
			m.queueAttempt(ctrl, req.ExerciseID, rec)
		},
		OnProctor: func(eventType model.ProctorEventType, details string) {
			m.queueProctorEvent(ctrl, req.ExerciseID, eventType, details)
		},
		OnTerminal: func(state model.SessionState, reason string) {
			m.finishSession(ctrl, state, reason)
		},
		Log: m.log,
	})

	m.mu.Lock()
	// Another request may have won the race while we were building.
	if existing, ok := m.byKey[key]; ok {
		m.mu.Unlock()
		ctrl.Close()
		return existing, nil
	}
	m.byKey[key] = ctrl
	m.byID[ctrl.ID()] = ctrl
	m.mu.Unlock()

	row := &model.Session{
		ID:         ctrl.ID(),
		StudentID:  studentID,
		CourseID:   req.CourseID,
		ExerciseID: req.ExerciseID,
		Mode:       policy.Mode(req.Category),
		Status:     model.StateCheckingStatus,
	}
	if err := m.repo.Create(ctx, row); err != nil {
		m.remove(ctrl)
		return nil, fmt.Errorf("create session row: %w", err)
	}

	// Cache the start time so state reads stay off PostgreSQL.
	startKey := config.CacheKey.StudentSessionStartKey(req.ExerciseID, studentID)
	if err := m.rdb.Set(ctx, startKey, row.StartedAt.Unix(), 0).Err(); err != nil {
		// Non-fatal; StartTime falls back to the database.
		m.log.Warn().Err(err).Msg("Failed to cache session start time")
	}
	_ = m.rdb.Set(ctx, config.CacheKey.StudentActiveExerciseKey(studentID), req.ExerciseID, 0).Err()

	if err := ctrl.Start(ctx); err != nil {
		m.remove(ctrl)
		return nil, fmt.Errorf("start session: %w", err)
	}

	_ = m.repo.UpdateStatus(ctx, ctrl.ID(), ctrl.Snapshot().State)

	return ctrl, nil
}

// Get returns the live controller for a session ID.
func (m *SessionManager) Get(id uuid.UUID) (*session.Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

// Close tears down a live session and evicts it from the registry. The
// durable row and attempt trail persist.
func (m *SessionManager) Close(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	ctrl, ok := m.byID[id]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	ctrl.Close()
	m.remove(ctrl)
	_ = m.rdb.Del(ctx, config.CacheKey.StudentActiveExerciseKey(ctrl.StudentID())).Err()
	return nil
}

// Shutdown closes every live session. Called during graceful shutdown.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	controllers := make([]*session.Controller, 0, len(m.byID))
	for _, ctrl := range m.byID {
		controllers = append(controllers, ctrl)
	}
	m.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.Close()
		m.remove(ctrl)
	}
}

// StartTime returns the session start time, preferring the Redis cache and
// falling back to PostgreSQL on a miss. A miss self-heals the cache.
func (m *SessionManager) StartTime(ctx context.Context, exerciseID string, studentID int) (time.Time, error) {
	startKey := config.CacheKey.StudentSessionStartKey(exerciseID, studentID)

	val, err := m.rdb.Get(ctx, startKey).Result()
	if err == nil {
		unix, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr != nil {
			return time.Time{}, fmt.Errorf("invalid start time format in cache: %w", parseErr)
		}
		return time.Unix(unix, 0), nil
	}
	if !errors.Is(err, redis.Nil) {
		return time.Time{}, fmt.Errorf("redis error getting start time: %w", err)
	}

	// Cache miss: fall back to the source of truth.
	row, dbErr := m.repo.GetByExerciseAndStudent(ctx, exerciseID, studentID)
	if dbErr != nil {
		if errors.Is(dbErr, pgx.ErrNoRows) {
			return time.Time{}, ErrSessionNotFound
		}
		return time.Time{}, fmt.Errorf("session not found in cache or db: %w", dbErr)
	}

	// Self-heal so the next request is fast.
	_ = m.rdb.Set(ctx, startKey, row.StartedAt.Unix(), 0)

	return row.StartedAt, nil
}

// CacheBuffers autosaves the source buffers to Redis so a page refresh can
// restore the editor without touching PostgreSQL.
func (m *SessionManager) CacheBuffers(ctx context.Context, exerciseID string, studentID int, b model.SourceBuffers) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, config.CacheKey.StudentBuffersKey(exerciseID, studentID), data, 0).Err()
}

// CachedBuffers restores autosaved buffers, if any.
func (m *SessionManager) CachedBuffers(ctx context.Context, exerciseID string, studentID int) (*model.SourceBuffers, error) {
	val, err := m.rdb.Get(ctx, config.CacheKey.StudentBuffersKey(exerciseID, studentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var b model.SourceBuffers
	if err := json.Unmarshal([]byte(val), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ─── Event fan-out ──────────────────────────────────────────────────

// Watch subscribes to a session's event stream. The returned cancel func
// must be called when the watcher disconnects.
func (m *SessionManager) Watch(id uuid.UUID) (<-chan session.Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return nil, nil, ErrSessionNotFound
	}

	ch := make(chan session.Event, 64)
	if m.watchers[id] == nil {
		m.watchers[id] = make(map[chan session.Event]struct{})
	}
	m.watchers[id][ch] = struct{}{}

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.watchers[id]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(m.watchers, id)
			}
		}
	}
	return ch, cancel, nil
}

func (m *SessionManager) broadcast(id uuid.UUID, e session.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.watchers[id] {
		select {
		case ch <- e:
		default:
			// Slow watcher; drop rather than stall the session.
		}
	}
}

// ─── Controller callbacks ───────────────────────────────────────────

func (m *SessionManager) queueAttempt(ctrl *session.Controller, exerciseID string, rec model.AttemptRecord) {
	item := worker.AttemptQueueItem{
		SessionID:    ctrl.ID().String(),
		StudentID:    ctrl.StudentID(),
		ExerciseID:   exerciseID,
		QuestionID:   rec.QuestionID,
		AttemptsUsed: rec.AttemptsUsed,
		SubmittedAt:  rec.LastSubmittedAt.Unix(),
	}
	data, _ := json.Marshal(item)
	if err := m.rdb.RPush(context.Background(), config.WorkerKey.PersistAttemptsQueue, data).Err(); err != nil {
		m.log.Error().Err(err).Str("question_id", rec.QuestionID).Msg("Failed to queue attempt record")
	}
}

func (m *SessionManager) queueProctorEvent(ctrl *session.Controller, exerciseID string, eventType model.ProctorEventType, details string) {
	item := worker.ProctorQueueItem{
		SessionID:  ctrl.ID().String(),
		StudentID:  ctrl.StudentID(),
		ExerciseID: exerciseID,
		EventType:  string(eventType),
		Details:    details,
		Timestamp:  time.Now().Unix(),
	}
	data, _ := json.Marshal(item)
	if err := m.rdb.RPush(context.Background(), config.WorkerKey.PersistProctorEventsQueue, data).Err(); err != nil {
		m.log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to queue proctor event")
	}
}

func (m *SessionManager) finishSession(ctrl *session.Controller, state model.SessionState, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.repo.Finish(ctx, ctrl.ID(), state, reason); err != nil {
		m.log.Error().Err(err).Str("session_id", ctrl.ID().String()).Msg("Failed to persist terminal state")
	}
	_ = m.rdb.Del(ctx, config.CacheKey.StudentActiveExerciseKey(ctrl.StudentID())).Err()
}

func (m *SessionManager) remove(ctrl *session.Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, c := range m.byKey {
		if c == ctrl {
			delete(m.byKey, key)
		}
	}
	delete(m.byID, ctrl.ID())
	delete(m.watchers, ctrl.ID())
}
