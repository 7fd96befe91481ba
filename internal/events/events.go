// Package events publishes posting lifecycle notifications to the other
// JobMate services.
package events

import (
	"context"
	"time"

	"jobmate/posting-service/internal/telemetry"
)

var tracer = telemetry.GetTracer("jobmate/posting-service/events")

type Type string

const (
	JobPosted  Type = "EVENT_JOB_POSTED"
	JobUpdated Type = "EVENT_JOB_UPDATED"
)

// Event is the JSON body published on every bus.
type Event struct {
	Type      Type      `json:"type"`
	DraftID   string    `json:"draftId"`
	JobID     string    `json:"jobId,omitempty"`
	UserID    string    `json:"userId"`
	CompanyID string    `json:"companyId,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
