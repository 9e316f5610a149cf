package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/user-portal/internal/data"
	"github.com/vasiliy-maslov/user-portal/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// CredentialsTable holds the local backend's accounts.
const CredentialsTable = "auth_user"

type credential struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type credentialInsert struct {
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// Local is an Authenticator that keeps bcrypt hashes in a store table and
// issues its own tokens.
type Local struct {
	accounts data.Table[credential]
	tokens   *TokenIssuer
	cost     int
}

type LocalOption func(*Local)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) LocalOption {
	return func(l *Local) { l.cost = cost }
}

func NewLocal(client store.Client, tokens *TokenIssuer, opts ...LocalOption) *Local {
	l := &Local{
		accounts: data.NewTable[credential](client, CredentialsTable),
		tokens:   tokens,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	acc, err := l.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		log.Warn().Str("email", email).Msg("auth: sign in for unknown email")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password hash: %w", err)
	}

	return l.tokens.Issue(User{ID: acc.ID.String(), Email: acc.Email})
}

func (l *Local) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	existing, err := l.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to generate password hash: %w", err)
	}

	created, err := l.accounts.Insert(ctx, credentialInsert{Email: email, PasswordHash: string(hash)})
	if err != nil {
		var remote *store.RemoteError
		if errors.As(err, &remote) && remote.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %w", ErrUserExists, err)
		}
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	acc := created[0]
	log.Info().Stringer("user_id", acc.ID).Msg("auth: account created")
	return l.tokens.Issue(User{ID: acc.ID.String(), Email: acc.Email})
}

func (l *Local) VerifyToken(_ context.Context, token string) (*Claims, error) {
	return l.tokens.Verify(token)
}

func (l *Local) lookup(ctx context.Context, email string) (*credential, error) {
	rows, err := l.accounts.Where(ctx, store.Filters{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
