package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	userID   int
	username string
	err      error
}

func (s stubValidator) ValidateToken(string) (int, string, error) {
	return s.userID, s.username, s.err
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		query      string
		validator  stubValidator
		wantStatus int
		wantUser   int
	}{
		{
			name:       "bearer header accepted",
			header:     "Bearer good-token",
			validator:  stubValidator{userID: 7, username: "alice"},
			wantStatus: http.StatusOK,
			wantUser:   7,
		},
		{
			name:       "query param fallback for websocket clients",
			query:      "good-token",
			validator:  stubValidator{userID: 9, username: "bob"},
			wantStatus: http.StatusOK,
			wantUser:   9,
		},
		{
			name:       "missing token rejected",
			validator:  stubValidator{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token rejected",
			header:     "Bearer bad-token",
			validator:  stubValidator{err: errors.New("expired")},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser int
			var gotOK bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _, gotOK = Identity(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.query != "" {
				q := req.URL.Query()
				q.Set("token", tt.query)
				req.URL.RawQuery = q.Encode()
			}

			rec := httptest.NewRecorder()
			NewAuthMiddleware(tt.validator).Handle(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.True(t, gotOK)
				assert.Equal(t, tt.wantUser, gotUser)
			}
		})
	}
}

func TestIdentityMissingFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, _, ok := Identity(req.Context())
	assert.False(t, ok)
}
