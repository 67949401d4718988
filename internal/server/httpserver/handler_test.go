package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/logging"
	"github.com/dmitrijs2005/onepass/internal/server/auth"
	"github.com/dmitrijs2005/onepass/internal/server/mailer"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/dmitrijs2005/onepass/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUsers records the last call and returns canned results.
type fakeUsers struct {
	err error

	user   *models.User
	pair   *auth.TokenPair
	verify *services.VerifyResult

	gotName, gotEmail, gotPassword, gotToken string
}

func (f *fakeUsers) Register(_ context.Context, name, email, password string) (*models.User, error) {
	f.gotName, f.gotEmail, f.gotPassword = name, email, password
	return f.user, f.err
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*auth.TokenPair, error) {
	f.gotEmail, f.gotPassword = email, password
	return f.pair, f.err
}

func (f *fakeUsers) Verify(_ context.Context, token string) (*services.VerifyResult, error) {
	f.gotToken = token
	return f.verify, f.err
}

func (f *fakeUsers) ResendVerification(_ context.Context, email string) error {
	f.gotEmail = email
	return f.err
}

func (f *fakeUsers) RefreshToken(_ context.Context, token string) (*auth.TokenPair, error) {
	f.gotToken = token
	return f.pair, f.err
}

func (f *fakeUsers) ForgotPassword(_ context.Context, email string) error {
	f.gotEmail = email
	return f.err
}

func (f *fakeUsers) ResetPassword(_ context.Context, token, password string) error {
	f.gotToken, f.gotPassword = token, password
	return f.err
}

func (f *fakeUsers) Me(_ context.Context, token string) (*models.User, error) {
	f.gotToken = token
	return f.user, f.err
}

func newTestServer(t *testing.T, users UserService) http.Handler {
	t.Helper()
	s, err := NewHTTPServer("127.0.0.1:0", logging.Nop{}, users)
	require.NoError(t, err)
	return s.Router()
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHello(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeUsers{}), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, world!", decodeBody(t, rec)["message"])
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newTestServer(t, &fakeUsers{})

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRegister_Created(t *testing.T) {
	users := &fakeUsers{user: &models.User{ID: "u1"}}
	rec := do(t, newTestServer(t, users), http.MethodPost, "/auth/register",
		`{"name":"Theo","email":"theo@x.com","password":"correct horse"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "A link has been sent to your mail for verification.", decodeBody(t, rec)["message"])
	assert.Equal(t, "Theo", users.gotName)
	assert.Equal(t, "theo@x.com", users.gotEmail)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"bad email", `{"name":"a","email":"nope","password":"12345678"}`, "email must be a valid email address"},
		{"short password", `{"name":"a","email":"a@b.c","password":"1"}`, "password must be at least 8 characters in length"},
		{"missing name", `{"email":"a@b.c","password":"12345678"}`, "name is a required field"},
		{"malformed", `{"name":`, "malformed JSON body"},
		{"empty", ``, "request body is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUsers{}
			rec := do(t, newTestServer(t, users), http.MethodPost, "/auth/register", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, tt.detail, decodeBody(t, rec)["detail"])
			assert.Empty(t, users.gotEmail, "service must not be called")
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		detail string
	}{
		{common.ErrDuplicateEmail, http.StatusConflict, "Account with this email already exists!"},
		{common.ErrNotFound, http.StatusNotFound, "Invalid email or password!"},
		{common.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password!"},
		{common.ErrUnverifiedAccount, http.StatusUnauthorized, "Email has not been verified yet."},
		{common.ErrExpiredToken, http.StatusUnauthorized, "Signature has expired!"},
		{common.ErrInvalidToken, http.StatusUnauthorized, "invalid token!"},
		{fmt.Errorf("%w: db down", common.ErrServiceUnavailable), http.StatusServiceUnavailable, "Service temporarily unavailable, please try again later."},
		{fmt.Errorf("%w: password cannot be empty", common.ErrValidation), http.StatusUnprocessableEntity, "password cannot be empty"},
		{common.ErrInternal, http.StatusInternalServerError, "Internal server error"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := do(t, newTestServer(t, &fakeUsers{err: tt.err}), http.MethodPost, "/auth/login",
				`{"email":"a@b.c","password":"pw"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, decodeBody(t, rec)["detail"])
		})
	}
}

func TestLogin_ReturnsTokenPair(t *testing.T) {
	users := &fakeUsers{pair: &auth.TokenPair{AccessToken: "a", RefreshToken: "r", TokenType: "bearer"}}
	rec := do(t, newTestServer(t, users), http.MethodPost, "/auth/login", `{"email":"a@b.c","password":"pw"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "a", body["access_token"])
	assert.Equal(t, "r", body["refresh_token"])
	assert.Equal(t, "bearer", body["token_type"])
}

func TestVerify(t *testing.T) {
	users := &fakeUsers{verify: &services.VerifyResult{Email: "a@b.c"}}
	h := newTestServer(t, users)

	rec := do(t, h, http.MethodGet, "/auth/verify/tok123", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email verified!", decodeBody(t, rec)["message"])
	assert.Equal(t, "tok123", users.gotToken)

	users.verify = &services.VerifyResult{Email: "a@b.c", AlreadyVerified: true}
	rec = do(t, h, http.MethodGet, "/auth/verify/tok123", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email already verified", decodeBody(t, rec)["message"])
}

func TestVerify_Errors(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeUsers{err: common.ErrInvalidToken}), http.MethodGet, "/auth/verify/x", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Invalid token!", decodeBody(t, rec)["detail"])

	rec = do(t, newTestServer(t, &fakeUsers{err: common.ErrExpiredToken}), http.MethodGet, "/auth/verify/x", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Signature has expired!", decodeBody(t, rec)["detail"])
}

func TestResendVerify(t *testing.T) {
	users := &fakeUsers{}
	h := newTestServer(t, users)

	rec := do(t, h, http.MethodGet, "/auth/resend_verify?email=a@b.c", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@b.c", users.gotEmail)

	rec = do(t, h, http.MethodGet, "/auth/resend_verify", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRefresh(t *testing.T) {
	users := &fakeUsers{pair: &auth.TokenPair{AccessToken: "a2", RefreshToken: "r2", TokenType: "bearer"}}
	rec := do(t, newTestServer(t, users), http.MethodGet, "/auth/refresh/r1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", users.gotToken)
	assert.Equal(t, "a2", decodeBody(t, rec)["access_token"])
}

func TestForgotAndResetPassword(t *testing.T) {
	users := &fakeUsers{}
	h := newTestServer(t, users)

	rec := do(t, h, http.MethodPost, "/auth/forgot_pwd", `{"email":"a@b.c"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@b.c", users.gotEmail)

	rec = do(t, h, http.MethodPost, "/auth/reset_pwd/rt", `{"password":"new password"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password has been reset.", decodeBody(t, rec)["message"])
	assert.Equal(t, "rt", users.gotToken)
	assert.Equal(t, "new password", users.gotPassword)
}

func TestMe(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users := &fakeUsers{user: &models.User{
		ID: "u1", Name: "theo", Email: "theo@x.com", PasswordHash: "secret-hash",
		IsVerified: true, CreatedAt: created, UpdatedAt: created,
	}}
	h := newTestServer(t, users)

	rec := do(t, h, http.MethodGet, "/auth/me", "", "Authorization", "Bearer acc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc", users.gotToken)
	body := decodeBody(t, rec)
	assert.Equal(t, "theo@x.com", body["email"])
	assert.Equal(t, true, body["is_verified"])
	assert.NotContains(t, rec.Body.String(), "secret-hash")
}

func TestMe_Unauthenticated(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"empty token", "Bearer   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUsers{}
			rec := do(t, newTestServer(t, users), http.MethodGet, "/auth/me", "", "Authorization", tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Empty(t, users.gotToken)
		})
	}

	rec := do(t, newTestServer(t, &fakeUsers{err: common.ErrInvalidToken}), http.MethodGet, "/auth/me", "",
		"Authorization", "bearer bad")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = bearerToken("BEARER  abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = bearerToken("abc")
	assert.False(t, ok)
}

func TestEmailPreview(t *testing.T) {
	renderer, err := mailer.NewRenderer()
	require.NoError(t, err)

	s, err := NewHTTPServer("127.0.0.1:0", logging.Nop{}, &fakeUsers{})
	require.NoError(t, err)

	rec := do(t, s.Router(), http.MethodGet, "/emails/register", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "preview is off unless enabled")

	s.EnableEmailPreview(renderer)
	h := s.Router()

	rec = do(t, h, http.MethodGet, "/emails/register", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Theo")
	assert.Contains(t, rec.Body.String(), "https://samplelink.com")

	rec = do(t, h, http.MethodGet, "/emails/password_reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/emails/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, rec.Body.String())
}
