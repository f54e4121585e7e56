package credentials

import (
	"context"
	"time"
)

// Credentials is the public view of a stored username/password pair.
type Credentials struct {
	Username    string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Record is the stored form of Credentials. PasswordHash holds a bcrypt hash.
type Record struct {
	Credentials
	PasswordHash string
}

// Input carries the details needed to create credentials.
type Input struct {
	Username    string
	Password    string
	Description string
}

// Patch describes a partial update. Nil fields are left untouched.
type Patch struct {
	Password    *string
	Description *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Password == nil && p.Description == nil
}

// ListOptions restricts a listing to credentials created inside a time window.
// Both bounds are inclusive; a nil bound is open.
type ListOptions struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t falls inside the window.
func (o ListOptions) Contains(t time.Time) bool {
	if o.Start != nil && t.Before(*o.Start) {
		return false
	}
	if o.End != nil && t.After(*o.End) {
		return false
	}
	return true
}

// Store persists credential records. Implementations return ErrNotFound and
// ErrAlreadyExists from this package.
type Store interface {
	Add(ctx context.Context, rec Record) error
	Get(ctx context.Context, username string) (Record, error)
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	Update(ctx context.Context, rec Record) error
	Remove(ctx context.Context, username string) (bool, error)
}
