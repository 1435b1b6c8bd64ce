package booking

import (
	"context"
	"io"
	"time"
)

// Session is an authenticated conversation with the booking site on behalf of one user.
type Session interface {
	User() *User
	CourseType() string
	FindSlots(ctx context.Context, month string) (Slots, error)
	BookSlots(ctx context.Context, slots Slots) (Outcome, error)
}

// SessionFactory logs a user in for the given course type.
type SessionFactory interface {
	NewSession(ctx context.Context, user *User, courseType string) (Session, error)
}

// Notifier delivers chat messages to a single user or the broadcast channel.
type Notifier interface {
	Private(ctx context.Context, chatID string, text string) error
	Broadcast(ctx context.Context, text string) error
}

// HistoryStore persists booking attempts.
type HistoryStore interface {
	Record(ctx context.Context, record Record) error
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes booking outcomes to Pub/Sub (or similar), tagged with an event name.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) (string, error)
}

// Hasher computes digests for snapshot naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces tick and record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
