// Package activity records and aggregates the audit trail of clinic entities.
package activity

import (
	"context"
	"reflect"
	"time"

	"github.com/frahmantamala/clinic-management/internal/audit"
)

const LogName = "Database"

// Kind tags the entity an activity points at.
type Kind string

const (
	KindUser        Kind = "user"
	KindPatient     Kind = "patient"
	KindAppointment Kind = "appointment"
	KindMedia       Kind = "media"
)

var typeNames = map[Kind]string{
	KindUser:        "User",
	KindPatient:     "Patient",
	KindAppointment: "Appointment",
	KindMedia:       "Media",
}

// TypeName is the human-facing entity name used for "self" groups.
func (k Kind) TypeName() string {
	if name, ok := typeNames[k]; ok {
		return name
	}
	return Headline(string(k))
}

func (k Kind) Valid() bool {
	_, ok := typeNames[k]
	return ok
}

// Subject identifies one audited row.
type Subject struct {
	Kind Kind  `json:"type"`
	ID   int64 `json:"id"`
}

type Action string

const (
	Created            Action = "Created"
	Updated            Action = "Updated"
	Deleted            Action = "Deleted"
	Restored           Action = "Restored"
	PermanentlyDeleted Action = "Permanently deleted"
)

// Changes holds the new and previous values of the changed logged fields.
type Changes struct {
	Attributes map[string]any `json:"attributes"`
	Old        map[string]any `json:"old"`
}

func (c *Changes) Properties() map[string]any {
	if c == nil {
		return nil
	}
	return map[string]any{"attributes": c.Attributes, "old": c.Old}
}

// Diff compares the logged fields of two snapshots and returns nil when none changed.
func Diff(fields []string, before, after map[string]any) *Changes {
	changes := &Changes{Attributes: map[string]any{}, Old: map[string]any{}}
	for _, f := range fields {
		if reflect.DeepEqual(before[f], after[f]) {
			continue
		}
		changes.Attributes[f] = after[f]
		changes.Old[f] = before[f]
	}
	if len(changes.Attributes) == 0 {
		return nil
	}
	return changes
}

// Entry is a new activity row ready to be written.
type Entry struct {
	LogName     string
	Description Action
	Subject     Subject
	CauserID    int64
	Properties  map[string]any
	CreatedAt   time.Time
}

// Writer persists entries, normally inside the caller's transaction.
type Writer interface {
	Write(ctx context.Context, e *Entry) error
}

type Recorder struct {
	now func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// NewRecorderWithClock is used by tests that need deterministic timestamps.
func NewRecorderWithClock(now func() time.Time) *Recorder {
	return &Recorder{now: now}
}

// Record writes one entry through w. Without an actor nothing is written.
func (r *Recorder) Record(ctx context.Context, w Writer, actor *audit.Actor, subject Subject, action Action, changes *Changes) error {
	if actor == nil {
		return nil
	}
	if action == Updated && changes == nil {
		return nil
	}
	return w.Write(ctx, &Entry{
		LogName:     LogName,
		Description: action,
		Subject:     subject,
		CauserID:    actor.ID,
		Properties:  changes.Properties(),
		CreatedAt:   r.now(),
	})
}
