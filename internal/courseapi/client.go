// Package courseapi is the client for the external course backend: the
// exercise-status check and the answer-submission endpoint. The engine
// treats that backend as authoritative for lockouts and attempt limits.
package courseapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/praxislabs/codelab-engine/internal/model"
)

// ErrAttemptLimit is returned when the backend rejects a submission with
// 403: the server-side attempt count is exhausted.
var ErrAttemptLimit = errors.New("maximum attempts reached")

// ExerciseStatus is the lockout-relevant slice of the status response.
type ExerciseStatus struct {
	IsLocked bool
	Status   string
	Reason   string
}

const (
	// StatusTerminated and StatusCompleted are backend status values that
	// lock the session out.
	StatusTerminated = "terminated"
	StatusCompleted  = "completed"
)

// Blocking reports whether the status forbids starting or continuing the
// session.
func (s *ExerciseStatus) Blocking() bool {
	return s.IsLocked || s.Status == StatusTerminated || s.Status == StatusCompleted
}

// Client talks to the course backend over HTTP with bearer auth.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// New creates a client for the given base URL and service bearer token.
func New(baseURL, bearerToken string, timeout time.Duration, log zerolog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(bearerToken).
		SetHeader("Accept", "application/json")

	return &Client{
		http: rc,
		log:  log.With().Str("component", "courseapi").Logger(),
	}
}

type statusResponse struct {
	Success bool `json:"success"`
	Data    struct {
		IsLocked bool   `json:"isLocked"`
		Status   string `json:"status"`
		Reason   string `json:"reason"`
	} `json:"data"`
}

// GetExerciseStatus queries GET /exercise/status. Any transport failure,
// non-2xx response or unusable body is returned as an error; the caller
// treats that as "status unknown, proceed" (fail-open), because the server
// remains the authority at submission time regardless.
func (c *Client) GetExerciseStatus(ctx context.Context, desc model.ExerciseDescriptor) (*ExerciseStatus, error) {
	var body statusResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"courseId":    desc.CourseID,
			"exerciseId":  desc.ExerciseID,
			"category":    desc.Category,
			"subcategory": desc.Subcategory,
		}).
		SetResult(&body).
		Get("/exercise/status")
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("status request: unexpected status %d", resp.StatusCode())
	}
	if !body.Success {
		return nil, errors.New("status request: backend reported failure")
	}

	return &ExerciseStatus{
		IsLocked: body.Data.IsLocked,
		Status:   body.Data.Status,
		Reason:   body.Data.Reason,
	}, nil
}

// SubmitAnswer posts the submission payload. A 403 means the attempt limit
// was exceeded server-side (ErrAttemptLimit); any other non-2xx is a
// generic, retryable failure.
func (c *Client) SubmitAnswer(ctx context.Context, payload *model.SubmissionPayload) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/courses/answers/submit")
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}

	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() == http.StatusForbidden:
		return ErrAttemptLimit
	default:
		c.log.Warn().
			Int("status", resp.StatusCode()).
			Str("question_id", payload.QuestionID).
			Msg("Submission rejected")
		return fmt.Errorf("submit request: unexpected status %d", resp.StatusCode())
	}
}
