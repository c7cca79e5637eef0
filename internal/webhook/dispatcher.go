// Package webhook dispatches analysis submissions to the external evaluation
// workflow. The workflow owns all candidate scoring; this side only submits
// and reads back results from the shared database.
package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonathan/resume-screener/internal/schemas"
)

// DefaultTimeout is the default submission request timeout.
const DefaultTimeout = 30 * time.Second

const trackingRandLen = 9

// Error represents a dispatch failure. StatusCode is zero when the request
// never reached the workflow.
type Error struct {
	TrackingID string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("webhook dispatch failed for %s: %s: %v", e.TrackingID, e.Message, e.Cause)
	}
	return fmt.Sprintf("webhook dispatch failed for %s: %s", e.TrackingID, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// SubmissionPayload is the body posted to the workflow.
type SubmissionPayload struct {
	RequirementID   string `json:"requirement_id"`
	JobTitle        string `json:"jobTitle"`
	JobDescription  string `json:"jobDescription,omitempty"`
	InputType       string `json:"inputType,omitempty"`
	ExperienceLevel string `json:"experienceLevel"`
	UserID          string `json:"userId,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// Dispatcher submits analysis requests to the evaluation workflow.
type Dispatcher struct {
	webhookURL string
	apiKey     string
	client     *http.Client
}

// Options configures a Dispatcher.
type Options struct {
	Timeout time.Duration
	Client  *http.Client
}

// NewDispatcher creates a dispatcher for the workflow at webhookURL. The API
// key is sent as X-API-Key on every submission; pass empty when the workflow
// is unauthenticated.
func NewDispatcher(webhookURL, apiKey string, opts *Options) *Dispatcher {
	d := &Dispatcher{
		webhookURL: webhookURL,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: DefaultTimeout},
	}
	if opts != nil {
		if opts.Client != nil {
			d.client = opts.Client
		} else if opts.Timeout > 0 {
			d.client = &http.Client{Timeout: opts.Timeout}
		}
	}
	return d
}

// NewTrackingID generates a submission identifier of the form
// REQ-<unix-millis>-<9 random [a-z0-9] chars>. The timestamp keeps IDs
// roughly sortable; the random tail makes collisions within one millisecond
// implausible.
func NewTrackingID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, trackingRandLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(fmt.Sprintf("tracking id generation: %v", err))
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return fmt.Sprintf("REQ-%d-%s", time.Now().UnixMilli(), buf)
}

// Dispatch validates and posts one submission. Fail-fast: any validation,
// transport, or non-2xx response error surfaces immediately so the caller
// can report the submission as failed; nothing is retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, payload SubmissionPayload) error {
	if payload.Timestamp == "" {
		payload.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{TrackingID: payload.RequirementID, Message: "failed to encode payload", Cause: err}
	}
	if err := schemas.ValidateSubmission(body); err != nil {
		return &Error{TrackingID: payload.RequirementID, Message: "payload failed schema validation", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return &Error{TrackingID: payload.RequirementID, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-API-Key", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &Error{TrackingID: payload.RequirementID, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			TrackingID: payload.RequirementID,
			Message:    fmt.Sprintf("workflow returned %d: %.200s", resp.StatusCode, snippet),
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}
