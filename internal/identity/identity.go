// Package identity verifies bearer credentials and maps them to local users.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/fairshare/internal/database"
	"go.uber.org/zap"
)

var ErrUnauthenticated = errors.New("unauthenticated")

const fallbackDisplayName = "Roommate"

// Claims are the identity provider facts a Verifier extracts from a token.
type Claims struct {
	Subject string
	Email   string
	Name    string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// Identity is the resolved caller attached to a request or connection.
type Identity struct {
	UserId      string
	Email       string
	DisplayName string
}

type UserStore interface {
	GetUserBySubject(ctx context.Context, subject string) (database.User, error)
	CreateUser(ctx context.Context, user database.User) (database.User, error)
}

type Resolver struct {
	log      *zap.Logger
	verifier Verifier
	db       UserStore
	newId    func() string
	now      func() time.Time
}

func NewResolver(logger *zap.Logger, verifier Verifier, db UserStore) *Resolver {
	return &Resolver{
		log:      logger,
		verifier: verifier,
		db:       db,
		newId:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve verifies token and returns the local user it belongs to, creating
// the user on first sight.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	claims, err := r.verifier.Verify(ctx, token)
	if err != nil {
		r.log.Debug("token verification failed", zap.Error(err))
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}

	user, err := r.db.GetUserBySubject(ctx, claims.Subject)
	if err == nil {
		return toIdentity(user), nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return Identity{}, fmt.Errorf("get user by subject: %w", err)
	}

	now := r.now()
	user, err = r.db.CreateUser(ctx, database.User{
		Id:          r.newId(),
		Subject:     claims.Subject,
		Email:       claims.Email,
		DisplayName: DisplayName(claims.Name, claims.Email),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if errors.Is(err, database.ErrDuplicate) {
		// another request created the user first
		user, err = r.db.GetUserBySubject(ctx, claims.Subject)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("create user: %w", err)
	}

	r.log.Info("created user", zap.String("user_id", user.Id), zap.String("subject", user.Subject))
	return toIdentity(user), nil
}

// DisplayName picks the provider name, then the local part of the email,
// then a generic fallback.
func DisplayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(strings.TrimSpace(email), "@"); ok && local != "" {
		return local
	}
	return fallbackDisplayName
}

func toIdentity(u database.User) Identity {
	return Identity{
		UserId:      u.Id,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
}
