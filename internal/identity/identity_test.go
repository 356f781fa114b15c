package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type stubVerifier struct {
	claims Claims
	err    error
}

func (s stubVerifier) Verify(context.Context, string) (Claims, error) {
	return s.claims, s.err
}

func newTestResolver(t *testing.T, v Verifier, db UserStore) *Resolver {
	r := NewResolver(testutil.TestLogger(t), v, db)
	r.newId = func() string { return "new-user-id" }
	r.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestResolver_Resolve(t *testing.T) {
	existing := database.User{Id: "u1", Subject: "sub-1", Email: "sam@example.com", DisplayName: "Sam"}

	tcases := []struct {
		name      string
		token     string
		verifier  stubVerifier
		setupMock func(db *database.MockRepository)
		expected  Identity
		expectErr error
	}{
		{
			name:      "missing token",
			token:     "  ",
			setupMock: func(db *database.MockRepository) {},
			expectErr: ErrUnauthenticated,
		},
		{
			name:      "verification fails",
			token:     "bad",
			verifier:  stubVerifier{err: errors.New("signature invalid")},
			setupMock: func(db *database.MockRepository) {},
			expectErr: ErrUnauthenticated,
		},
		{
			name:     "existing user",
			token:    "tok",
			verifier: stubVerifier{claims: Claims{Subject: "sub-1"}},
			setupMock: func(db *database.MockRepository) {
				db.On("GetUserBySubject", "sub-1").Return(existing, nil).Once()
			},
			expected: Identity{UserId: "u1", Email: "sam@example.com", DisplayName: "Sam"},
		},
		{
			name:     "creates user on first sight with email fallback",
			token:    "tok",
			verifier: stubVerifier{claims: Claims{Subject: "sub-2", Email: "jo@example.com"}},
			setupMock: func(db *database.MockRepository) {
				db.On("GetUserBySubject", "sub-2").Return(database.User{}, database.ErrNotFound).Once()
				db.On("CreateUser", mock.MatchedBy(func(u database.User) bool {
					return u.Id == "new-user-id" && u.Subject == "sub-2" && u.DisplayName == "jo"
				})).Return(database.User{Id: "new-user-id", Subject: "sub-2", Email: "jo@example.com", DisplayName: "jo"}, nil).Once()
			},
			expected: Identity{UserId: "new-user-id", Email: "jo@example.com", DisplayName: "jo"},
		},
		{
			name:     "concurrent create re-reads the winner",
			token:    "tok",
			verifier: stubVerifier{claims: Claims{Subject: "sub-1", Name: "Sam"}},
			setupMock: func(db *database.MockRepository) {
				db.On("GetUserBySubject", "sub-1").Return(database.User{}, database.ErrNotFound).Once()
				db.On("CreateUser", mock.Anything).Return(database.User{}, database.ErrDuplicate).Once()
				db.On("GetUserBySubject", "sub-1").Return(existing, nil).Once()
			},
			expected: Identity{UserId: "u1", Email: "sam@example.com", DisplayName: "Sam"},
		},
		{
			name:     "lookup error",
			token:    "tok",
			verifier: stubVerifier{claims: Claims{Subject: "sub-1"}},
			setupMock: func(db *database.MockRepository) {
				db.On("GetUserBySubject", "sub-1").Return(database.User{}, errors.New("connection reset")).Once()
			},
			expectErr: errors.New("get user by subject: connection reset"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			tc.setupMock(db)

			r := newTestResolver(t, tc.verifier, db)
			got, err := r.Resolve(context.Background(), tc.token)

			if tc.expectErr != nil {
				if errors.Is(tc.expectErr, ErrUnauthenticated) {
					assert.ErrorIs(t, err, ErrUnauthenticated, "expected unauthenticated error")
				} else {
					assert.EqualError(t, err, tc.expectErr.Error())
				}
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestDisplayName(t *testing.T) {
	tcases := []struct {
		name, email, expected string
	}{
		{"Alex Doe", "alex@example.com", "Alex Doe"},
		{"  ", "casey@example.com", "casey"},
		{"", "not-an-email", "Roommate"},
		{"", "", "Roommate"},
		{"", "@example.com", "Roommate"},
	}

	for _, tc := range tcases {
		assert.Equal(t, tc.expected, DisplayName(tc.name, tc.email), "unexpected display name for (%q, %q)", tc.name, tc.email)
	}
}
