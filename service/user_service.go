// Package service implements the resource services: domain operations
// translated into session-scoped queries, with uniqueness and existence
// invariants enforced here rather than in handlers.
package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skryldev/apikit/apperr"
	"github.com/Skryldev/apikit/db"
	"github.com/Skryldev/apikit/models"
	"github.com/Skryldev/apikit/providers"
	"github.com/Skryldev/apikit/repo"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 100

	defaultPageSize = 10
	maxPageSize     = 100
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// CreateUserInput carries the fields accepted when creating a user.
type CreateUserInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

// UpdateUserInput carries a sparse update: only fields the client
// explicitly supplied are applied, so "set full_name to null" and "leave
// full_name unchanged" are distinct.
type UpdateUserInput struct {
	Email    models.Optional[string]  `json:"email"`
	Password models.Optional[string]  `json:"password"`
	FullName models.Optional[*string] `json:"full_name"`
	IsActive models.Optional[bool]    `json:"is_active"`
}

// UserService executes user operations, each inside exactly one
// transactional session acquired from the injected session manager.
type UserService struct {
	mgr   *db.SessionManager
	email providers.EmailProvider
	log   zerolog.Logger
}

// Option customises a UserService.
type Option func(*UserService)

// WithEmailProvider enables the welcome email on user creation.
func WithEmailProvider(p providers.EmailProvider) Option {
	return func(s *UserService) { s.email = p }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *UserService) { s.log = l }
}

// NewUserService returns a UserService bound to mgr.
func NewUserService(mgr *db.SessionManager, opts ...Option) *UserService {
	s := &UserService{mgr: mgr, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the user with the given id, or apperr.NotFound.
func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	var user *models.User
	err := s.mgr.Scope(ctx, func(sess *db.Session) error {
		var err error
		user, err = repo.NewUserRepo(sess).GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return user, nil
}

// GetByEmail returns the user with the given email, or (nil, nil) when no
// such user exists — absence is an expected pre-check outcome here, not an
// error.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user *models.User
	err := s.mgr.Scope(ctx, func(sess *db.Session) error {
		var err error
		user, err = repo.NewUserRepo(sess).GetByEmail(ctx, email)
		return err
	})
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// List returns one page of users plus the total count. page is 1-based;
// pageSize is clamped to [1, 100]. The count runs as a separate query, so
// items and total can race under concurrent writes — accepted as
// approximate rather than point-in-time consistent.
func (s *UserService) List(ctx context.Context, page, pageSize int) ([]*models.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var (
		users []*models.User
		total int64
	)
	err := s.mgr.Scope(ctx, func(sess *db.Session) error {
		r := repo.NewUserRepo(sess)
		var err error
		if total, err = r.Count(ctx); err != nil {
			return err
		}
		// A page whose offset cannot be represented lies past the end of
		// any table; answer it as an empty page instead of letting the
		// multiplication wrap to a negative OFFSET.
		if page-1 > math.MaxInt/pageSize {
			return nil
		}
		users, err = r.List(ctx, pageSize, (page-1)*pageSize)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, total, nil
}

// Create inserts a new user with a bcrypt-hashed password. A duplicate
// email fails with apperr.Conflict. The pre-check and the insert run in the
// same session; the unique index remains the authoritative guard, so a
// constraint violation surfacing at insert time (two concurrent creates)
// is translated to the same Conflict instead of an internal error.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	hashed, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = s.mgr.Scope(ctx, func(sess *db.Session) error {
		r := repo.NewUserRepo(sess)

		existing, err := r.GetByEmail(ctx, input.Email)
		if err != nil && !db.IsNotFound(err) {
			return err
		}
		if existing != nil {
			return apperr.Conflict("User with this email already exists")
		}

		user, err = r.Insert(ctx, models.CreateUserParams{
			Email:          input.Email,
			HashedPassword: hashed,
			FullName:       input.FullName,
		})
		return err
	})
	if err != nil {
		return nil, translateStorageErr(err)
	}

	s.sendWelcome(user)
	return user, nil
}

// Update applies a sparse update. A missing user fails with
// apperr.NotFound; changing the email to one already taken fails with
// apperr.Conflict.
func (s *UserService) Update(ctx context.Context, id int64, input UpdateUserInput) (*models.User, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	params := models.UpdateUserParams{
		ID:       id,
		Email:    input.Email,
		FullName: input.FullName,
		IsActive: input.IsActive,
	}
	if input.Password.Set {
		hashed, err := hashPassword(input.Password.Value)
		if err != nil {
			return nil, err
		}
		params.HashedPassword = models.Some(hashed)
	}

	var user *models.User
	err := s.mgr.Scope(ctx, func(sess *db.Session) error {
		r := repo.NewUserRepo(sess)

		// Existence check first so a bad id is NotFound even when the
		// update itself carries no fields.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		var err error
		user, err = r.Update(ctx, params)
		return err
	})
	if err != nil {
		return nil, translateStorageErr(err)
	}
	return user, nil
}

// Delete removes the user with the given id, or fails with apperr.NotFound.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	err := s.mgr.Scope(ctx, func(sess *db.Session) error {
		return repo.NewUserRepo(sess).Delete(ctx, id)
	})
	if err != nil {
		return translateStorageErr(err)
	}
	return nil
}

// sendWelcome delivers the welcome email off the request path; delivery
// failure is logged, never surfaced to the client.
func (s *UserService) sendWelcome(user *models.User) {
	if s.email == nil {
		return
	}
	name := user.Email
	if user.FullName != nil {
		name = *user.FullName
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		body := fmt.Sprintf("Hello %s, welcome aboard!", name)
		if err := s.email.Send(ctx, user.Email, "Welcome!", body); err != nil {
			s.log.Warn().Err(err).Str("email", user.Email).Msg("welcome email failed")
		}
	}()
}

// ─── validation ──────────────────────────────────────────────────────────────

func validateCreate(input CreateUserInput) error {
	fields := map[string]string{}
	if !emailPattern.MatchString(input.Email) {
		fields["email"] = "must be a valid email address"
	}
	if msg := passwordIssue(input.Password); msg != "" {
		fields["password"] = msg
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid user payload", fields)
	}
	return nil
}

func validateUpdate(input UpdateUserInput) error {
	fields := map[string]string{}
	if input.Email.Set && !emailPattern.MatchString(input.Email.Value) {
		fields["email"] = "must be a valid email address"
	}
	if input.Password.Set {
		if msg := passwordIssue(input.Password.Value); msg != "" {
			fields["password"] = msg
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid user payload", fields)
	}
	return nil
}

func passwordIssue(pw string) string {
	switch {
	case len(pw) < minPasswordLen:
		return fmt.Sprintf("must be at least %d characters", minPasswordLen)
	case len(pw) > maxPasswordLen:
		return fmt.Sprintf("must be at most %d characters", maxPasswordLen)
	}
	return ""
}

func hashPassword(pw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("service/user: hash password: %w", err)
	}
	return string(hashed), nil
}

// translateStorageErr maps storage sentinels onto the domain taxonomy.
// Domain errors raised inside a scope pass through unmodified.
func translateStorageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) != apperr.KindUnknown:
		return err
	case db.IsNotFound(err):
		return apperr.NotFound("User")
	case db.IsDuplicateKey(err):
		return apperr.Conflict("User with this email already exists")
	default:
		return err
	}
}
