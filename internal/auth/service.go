package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"freight-resale-api-server/internal/clock"
	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/models"

	"github.com/rs/zerolog"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Insert(ctx context.Context, u models.User) error
}

// Accounts registers users and logs them in.
type Accounts struct {
	users  UserStore
	tokens *Tokens
	sink   events.Sink
	clock  clock.Clock
	cost   int
	logger zerolog.Logger
}

type AccountsOption func(*Accounts)

// WithCost overrides the bcrypt cost.
func WithCost(cost int) AccountsOption { return func(a *Accounts) { a.cost = cost } }

func WithAccountsClock(c clock.Clock) AccountsOption { return func(a *Accounts) { a.clock = c } }

func WithAccountsLogger(l zerolog.Logger) AccountsOption { return func(a *Accounts) { a.logger = l } }

func NewAccounts(users UserStore, tokens *Tokens, sink events.Sink, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		users:  users,
		tokens: tokens,
		sink:   sink,
		clock:  clock.NewSystem(),
		cost:   DefaultCost,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sink == nil {
		a.sink = events.Discard{}
	}
	return a
}

type Registration struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	CompanyName string `json:"companyName" binding:"required"`
	Role        string `json:"role" binding:"required"`
}

// Register creates a shipper or forwarder account. Admins are only seeded.
func (a *Accounts) Register(ctx context.Context, in Registration) (models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, fmt.Errorf("%w: email %q", models.ErrInvalid, in.Email)
	}
	if len(in.Password) < 8 {
		return models.User{}, fmt.Errorf("%w: password must be at least 8 characters", models.ErrInvalid)
	}
	role := models.Role(in.Role)
	if role != models.RoleShipper && role != models.RoleForwarder {
		return models.User{}, fmt.Errorf("%w: role %q", models.ErrInvalid, in.Role)
	}

	hash, err := HashPassword(in.Password, a.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := models.User{
		ID:           models.NewID(),
		Email:        email,
		CompanyName:  strings.TrimSpace(in.CompanyName),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    models.Stamp(a.clock.Now()),
	}
	if err := a.users.Insert(ctx, u); err != nil {
		return models.User{}, err
	}
	a.logger.Info().Str("user_id", u.ID).Str("role", string(role)).Msg("user registered")
	a.sink.Publish(events.UserJoined{UserID: u.ID})
	return u, nil
}

// Login checks the password and returns a signed token.
func (a *Accounts) Login(ctx context.Context, email, password string) (string, models.User, error) {
	u, err := a.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrUserNotFound) {
		return "", models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", models.User{}, err
	}
	if !CheckPasswordHash(password, u.PasswordHash) {
		return "", models.User{}, ErrInvalidCredentials
	}
	token, err := a.tokens.Generate(u.ID, u.Email, string(u.Role))
	if err != nil {
		return "", models.User{}, fmt.Errorf("sign token: %w", err)
	}
	return token, u, nil
}

func (a *Accounts) Me(ctx context.Context, userID string) (models.User, error) {
	return a.users.FindByID(ctx, userID)
}
