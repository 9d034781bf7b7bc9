package notify

import "time"

type JobKind string

const (
	JobRetryRealtimePush JobKind = "retry-realtime-push"
	JobSendEmail         JobKind = "send-email"
)

// Job is a pending delivery. It lives only in memory; the notification row it
// refers to is already committed when the job is queued.
type Job struct {
	Kind           JobKind
	NotificationID int64
	OrderID        int64
	Payload        string
	// Recipient is the realtime channel for push retries and the address for email.
	Recipient      string
	// CreatedAt is the notification row's timestamp, replayed on redelivery.
	CreatedAt      time.Time
}
