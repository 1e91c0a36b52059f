package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/pgmeta/internal/orm/crud"
	"github.com/conduit-lang/pgmeta/internal/orm/tracking"
)

var (
	// ErrInvalidCredentials is returned when a username or password does not match
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUsernameTaken is returned when registering an existing username
	ErrUsernameTaken = errors.New("username is already taken")
	// ErrHabitNotFound is returned when a habit id does not exist
	ErrHabitNotFound = errors.New("habit not found")
)

// Store manages accounts and habits
type Store struct {
	ops    *crud.Operations
	logger *zap.Logger
	now    func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreLogger sets the logger used by the store and its persistence service
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNow sets the clock used for creation timestamps
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store over db for the application entities
func NewStore(db crud.Querier, opts ...StoreOption) *Store {
	s := &Store{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ops = crud.NewOperations(db, NewRegistry(), crud.WithLogger(s.logger))
	return s
}

// RegisterUser creates an account, storing a bcrypt hash of password
func (s *Store) RegisterUser(ctx context.Context, username, password string) (*tracking.Record, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username must not be empty")
	}
	if password == "" {
		return nil, errors.New("password must not be empty")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.ops.Create(User)
	if err != nil {
		return nil, err
	}
	user.Set("username", username).
		Set("password", hash).
		Set("createdAt", s.now().UTC())

	if err := s.ops.Save(ctx, user); err != nil {
		if crud.IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to register %s: %w", username, err)
	}

	s.logger.Info("registered user", zap.String("username", username), zap.Any("id", user.Get("id")))
	return user, nil
}

// Authenticate returns the user whose credentials match
func (s *Store) Authenticate(ctx context.Context, username, password string) (*tracking.Record, error) {
	user, err := s.ops.FetchOne(ctx, User, map[string]interface{}{"username": strings.TrimSpace(username)})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	hash, _ := user.Get("password").(string)
	if !CheckPassword(password, hash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// CreateHabit adds a habit for userID. cadence must be CadenceDaily or CadenceWeekly.
func (s *Store) CreateHabit(ctx context.Context, userID int64, name, cadence string) (*tracking.Record, error) {
	if cadence != CadenceDaily && cadence != CadenceWeekly {
		return nil, fmt.Errorf("unknown cadence %q", cadence)
	}

	habit, err := s.ops.Create(Habit)
	if err != nil {
		return nil, err
	}
	habit.Set("userId", userID).
		Set("name", name).
		Set("cadence", cadence).
		Set("createdAt", s.now().UTC())

	if err := s.ops.Save(ctx, habit); err != nil {
		return nil, err
	}
	return habit, nil
}

// HabitsFor returns the habits of userID
func (s *Store) HabitsFor(ctx context.Context, userID int64) ([]*tracking.Record, error) {
	return s.ops.Fetch(ctx, Habit, map[string]interface{}{"userId": userID})
}

// CountHabits returns how many habits userID tracks
func (s *Store) CountHabits(ctx context.Context, userID int64) (int64, error) {
	return s.ops.Count(ctx, Habit, map[string]interface{}{"userId": userID})
}

// UpdateHabit renames a habit and replaces its notes. Unchanged values issue no SQL.
func (s *Store) UpdateHabit(ctx context.Context, id int64, name string, notes *string) (*tracking.Record, error) {
	habit, err := s.ops.Find(ctx, Habit, id)
	if err != nil {
		return nil, err
	}
	if habit == nil {
		return nil, ErrHabitNotFound
	}

	habit.Set("name", name)
	if notes != nil {
		habit.Set("notes", *notes)
	} else {
		habit.Set("notes", nil)
	}

	if err := s.ops.Save(ctx, habit); err != nil {
		return nil, err
	}
	return habit, nil
}

// DeleteHabit removes a habit
func (s *Store) DeleteHabit(ctx context.Context, id int64) error {
	habit, err := s.ops.Find(ctx, Habit, id)
	if err != nil {
		return err
	}
	if habit == nil {
		return ErrHabitNotFound
	}
	return s.ops.Delete(ctx, habit)
}
