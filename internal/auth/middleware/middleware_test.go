package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/judged/internal/db/dbtest"
	"github.com/mind-engage/judged/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("k1", time.Hour)
	tok, err := a.IssueJWT("u-1", RoleJudge, "alice")
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.Sub)
	assert.Equal(t, RoleJudge, c.Role)
	assert.Equal(t, "alice", c.JudgeID)

	_, err = NewAuthService("k2", time.Hour).Parse(tok)
	assert.Error(t, err)
}

func TestParseRejectsExpiredAndForeignAlgorithms(t *testing.T) {
	a := NewAuthService("k1", time.Minute)
	a.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := a.IssueJWT("u-1", RoleJudge, "alice")
	require.NoError(t, err)
	_, err = a.Parse(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Sub: "u-1", Role: RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Parse(none)
	assert.Error(t, err)
}

func TestJWTMiddlewareFillsContext(t *testing.T) {
	a := NewAuthService("k1", time.Hour)
	tok, err := a.IssueJWT("u-1", RoleJudge, "alice")
	require.NoError(t, err)

	var sub, judge, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		judge = JudgeIDFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", sub)
	assert.Equal(t, "alice", judge)
	assert.Equal(t, RoleJudge, role)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("root-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	s := NewUserStore(dbtest.Open(t), "root", string(hash))

	u, err := s.Authenticate(ctx, "root", "root-pass")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)
	_, err = s.Authenticate(ctx, "root", "nope")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = s.Create(ctx, "alice", "pw-123456", RoleJudge, "")
	assert.Error(t, err)
	created, err := s.Create(ctx, "alice", "pw-123456", RoleJudge, "alice")
	require.NoError(t, err)
	_, err = s.Create(ctx, "alice", "other-pass", RoleAdmin, "")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	u, err = s.Authenticate(ctx, "alice", "pw-123456")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
	assert.Equal(t, "alice", u.JudgeID)

	assert.ErrorIs(t, s.ChangePassword(ctx, created.ID, "wrong", "new-pass-1"), ErrBadCredentials)
	require.NoError(t, s.ChangePassword(ctx, created.ID, "pw-123456", "new-pass-1"))
	_, err = s.Authenticate(ctx, "alice", "pw-123456")
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.ErrorIs(t, s.ChangePassword(ctx, "missing", "x", "y"), ErrUserNotFound)

	users, err := s.List(ctx, RoleJudge)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}

func TestLoginHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("root-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	a := NewAuthService("k1", time.Hour)
	h := LoginHandler(a, NewUserStore(dbtest.Open(t), "root", string(hash)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"root","password":"root-pass"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	c, err := a.Parse(body["access_token"])
	require.NoError(t, err)
	assert.Equal(t, "root", c.Sub)
	assert.Equal(t, RoleAdmin, c.Role)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"root","password":"bad"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
