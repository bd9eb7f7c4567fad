package results

import (
	"encoding/json"
	"strings"
	"time"

	werrors "github.com/vinayprograms/workkit/errors"
	"github.com/vinayprograms/workkit/supervisor"
)

// Common errors.
var (
	ErrNotFound     = werrors.New(werrors.ErrCodeNotFound, "result not found")
	ErrClosed       = werrors.New(werrors.ErrCodeClosed, "result store closed")
	ErrInvalidEvent = werrors.New(werrors.ErrCodeInvalidArgument, "invalid result event")
)

// Subject carries completion events from every instance.
const Subject = "workkit.results"

// Status is the outcome of a work item.
type Status string

const (
	// StatusSuccess indicates the work item returned nil.
	StatusSuccess Status = "success"

	// StatusFailed indicates the work item returned an error or panicked.
	StatusFailed Status = "failed"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Event is the published record of one finished work item.
type Event struct {
	// ID is the work item identifier assigned at admission.
	ID string `json:"id"`

	// Key is the ordering key the item was submitted with.
	Key string `json:"key,omitempty"`

	// Instance identifies the service instance that ran the item.
	Instance string `json:"instance,omitempty"`

	Status Status `json:"status"`

	// Error is the failure message when Status is StatusFailed.
	Error string `json:"error,omitempty"`

	// Code is the workkit error code of the failure, if any.
	Code string `json:"code,omitempty"`

	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// FromResult converts a supervisor result into an event.
func FromResult(instance string, r supervisor.Result) Event {
	ev := Event{
		ID:         r.ID,
		Key:        r.Key,
		Instance:   instance,
		Status:     StatusSuccess,
		Duration:   r.Duration,
		FinishedAt: time.Now(),
	}
	if r.Err != nil {
		ev.Status = StatusFailed
		ev.Error = r.Err.Error()
		ev.Code = werrors.CodeOf(r.Err).String()
	}
	return ev
}

// Validate checks that an event can be stored.
func (e *Event) Validate() error {
	if e.ID == "" {
		return werrors.Wrap(ErrInvalidEvent, "id is required")
	}
	if !e.Status.Valid() {
		return werrors.Wrap(ErrInvalidEvent, "unknown status "+string(e.Status))
	}
	return nil
}

// Marshal serializes an event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes and validates an event.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, werrors.WrapWithCode(err, werrors.ErrCodeInvalidArgument, "malformed result event")
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Filter specifies criteria for listing events.
type Filter struct {
	// Status filters by outcome. Empty means all.
	Status Status

	// Key filters by exact ordering key. Empty means all.
	Key string

	// IDPrefix filters by work item ID prefix.
	IDPrefix string

	// Instance filters by the instance that ran the item.
	Instance string

	// FinishedAfter filters events that finished after this time.
	FinishedAfter time.Time

	// Limit caps the number of events returned. 0 means no limit.
	Limit int
}

// Matches returns true if the event matches the filter criteria.
func (f Filter) Matches(e *Event) bool {
	if e == nil {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Key != "" && e.Key != f.Key {
		return false
	}
	if f.IDPrefix != "" && !strings.HasPrefix(e.ID, f.IDPrefix) {
		return false
	}
	if f.Instance != "" && e.Instance != f.Instance {
		return false
	}
	if !f.FinishedAfter.IsZero() && !e.FinishedAt.After(f.FinishedAfter) {
		return false
	}
	return true
}
