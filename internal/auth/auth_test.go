package auth

import (
	"context"
	"testing"
	"time"

	"freight-resale-api-server/internal/events"
	"freight-resale-api-server/internal/models"
	"freight-resale-api-server/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recorder struct{ evs []events.Event }

func (r *recorder) Publish(evs ...events.Event) { r.evs = append(r.evs, evs...) }

func TestTokens_RoundTrip(t *testing.T) {
	tokens, err := NewTokens("secret", time.Hour)
	require.NoError(t, err)

	s, err := tokens.Generate("u1", "a@b.co", "forwarder")
	require.NoError(t, err)

	claims, err := tokens.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "forwarder", claims.Role)

	other, _ := NewTokens("other", time.Hour)
	_, err = other.Parse(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_Expired(t *testing.T) {
	tokens, err := NewTokens("secret", time.Minute)
	require.NoError(t, err)
	issued := time.Now().Add(-time.Hour)
	tokens.now = func() time.Time { return issued }
	s, err := tokens.Generate("u1", "a@b.co", "shipper")
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Parse(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokens_RequiresSecret(t *testing.T) {
	_, err := NewTokens("", time.Hour)
	assert.Error(t, err)
}

func newAccounts(t *testing.T) (*Accounts, *recorder) {
	t.Helper()
	tokens, err := NewTokens("secret", time.Hour)
	require.NoError(t, err)
	rec := &recorder{}
	return NewAccounts(notify.NewMemoryUsers(), tokens, rec, WithCost(bcrypt.MinCost)), rec
}

func TestAccounts_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccounts(t)

	u, err := a.Register(ctx, Registration{Email: " Ops@Example.com ", Password: "longenough", CompanyName: "Acme", Role: "forwarder"})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", u.Email)
	assert.Equal(t, models.RoleForwarder, u.Role)
	assert.Equal(t, []events.Event{events.UserJoined{UserID: u.ID}}, rec.evs)

	token, got, err := a.Login(ctx, "OPS@example.com", "longenough")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	claims, err := a.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, _, err = a.Login(ctx, "ops@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.Login(ctx, "nobody@example.com", "longenough")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Register(ctx, Registration{Email: "ops@example.com", Password: "longenough", CompanyName: "Again", Role: "shipper"})
	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestAccounts_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	a, rec := newAccounts(t)

	tests := []Registration{
		{Email: "not-an-email", Password: "longenough", CompanyName: "x", Role: "shipper"},
		{Email: "a@b.co", Password: "short", CompanyName: "x", Role: "shipper"},
		{Email: "a@b.co", Password: "longenough", CompanyName: "x", Role: "admin"},
	}
	for _, in := range tests {
		_, err := a.Register(ctx, in)
		assert.ErrorIs(t, err, models.ErrInvalid, "%+v", in)
	}
	assert.Empty(t, rec.evs)
}
