package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used when none is configured.
const DefaultHashCost = bcrypt.DefaultCost

// Service implements credentials management on top of a Store.
type Service struct {
	store Store
	cost  int
	clock func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// Option configures Service behaviour.
type Option func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithHashCost sets the bcrypt cost for new password hashes.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// NewService constructs a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		cost:  DefaultHashCost,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates input, hashes the password and stores new credentials.
func (s *Service) Create(ctx context.Context, in Input) (Credentials, error) {
	if err := ValidateUsername(in.Username); err != nil {
		return Credentials{}, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return Credentials{}, err
	}
	if err := validateDescription(in.Description); err != nil {
		return Credentials{}, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return Credentials{}, err
	}

	now := s.now()
	rec := Record{
		Credentials: Credentials{
			Username:    in.Username,
			Description: in.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		PasswordHash: hash,
	}
	if err := s.store.Add(ctx, rec); err != nil {
		return Credentials{}, err
	}
	return rec.Credentials, nil
}

// Get returns the credentials stored for username.
func (s *Service) Get(ctx context.Context, username string) (Credentials, error) {
	rec, err := s.lookup(ctx, username)
	if err != nil {
		return Credentials{}, err
	}
	return rec.Credentials, nil
}

// lookup fetches a record and requires a byte-exact username match, since
// some SQL collations compare case-insensitively.
func (s *Service) lookup(ctx context.Context, username string) (Record, error) {
	rec, err := s.store.Get(ctx, username)
	if err != nil {
		return Record{}, err
	}
	if rec.Username != username {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	return rec, nil
}

// List returns credentials created inside the window, ordered by username.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Credentials, error) {
	if opts.Start != nil && opts.End != nil && opts.Start.After(*opts.End) {
		return nil, fmt.Errorf("%w: start date must not be after end date", ErrInvalidDetails)
	}

	records, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	out := make([]Credentials, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Credentials)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Update applies patch to the credentials stored for username.
func (s *Service) Update(ctx context.Context, username string, patch Patch) (Credentials, error) {
	if patch.IsEmpty() {
		return Credentials{}, fmt.Errorf("%w: nothing to update", ErrInvalidDetails)
	}

	rec, err := s.lookup(ctx, username)
	if err != nil {
		return Credentials{}, err
	}

	if patch.Password != nil {
		if err := ValidatePassword(*patch.Password); err != nil {
			return Credentials{}, err
		}
		hash, err := s.hash(*patch.Password)
		if err != nil {
			return Credentials{}, err
		}
		rec.PasswordHash = hash
	}
	if patch.Description != nil {
		if err := validateDescription(*patch.Description); err != nil {
			return Credentials{}, err
		}
		rec.Description = *patch.Description
	}
	rec.UpdatedAt = s.now()

	if err := s.store.Update(ctx, rec); err != nil {
		return Credentials{}, err
	}
	return rec.Credentials, nil
}

// Delete removes the credentials for username. It reports false when there
// was nothing to remove.
func (s *Service) Delete(ctx context.Context, username string) (bool, error) {
	rec, err := s.lookup(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.store.Remove(ctx, rec.Username)
}

// Check reports whether password matches the credentials stored for username.
// Unknown usernames cost one hash comparison as well.
func (s *Service) Check(ctx context.Context, username, password string) (bool, error) {
	// bcrypt only reads the first 72 bytes, so longer input would match any
	// password sharing that prefix.
	if len(password) > maxPasswordLength {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password[:maxPasswordLength]))
		return false, nil
	}

	rec, err := s.lookup(ctx, username)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) == nil, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		_, _ = rand.Read(buf)
		s.dummyHash, _ = bcrypt.GenerateFromPassword(buf, s.cost)
	})
	return s.dummyHash
}

// Timestamps are kept at microsecond precision to match SQL storage.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}
