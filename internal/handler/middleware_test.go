package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/pickupper/backend/internal/model"
)

type stubAuthorizer struct {
	principal     *model.Principal
	err           error
	authenticated int
	resolved      int
	lastSecret    string
}

func (s *stubAuthorizer) Authenticate(_ context.Context, secret string) (*model.Principal, error) {
	s.authenticated++
	s.lastSecret = secret
	return s.principal, s.err
}

func (s *stubAuthorizer) ResolvePermission(_ context.Context, secret string) (*model.Principal, error) {
	s.resolved++
	s.lastSecret = secret
	return s.principal, s.err
}

func gatedRouter(authz Authorizer, req Requirement, reached *bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Gate(authz, req), func(c *gin.Context) {
		*reached = true
		p := GetPrincipal(c)
		fromCtx, ok := PrincipalFromContext(c.Request.Context())
		if p == nil || !ok || fromCtx != p {
			c.Status(http.StatusTeapot)
			return
		}
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestGate(t *testing.T) {
	tests := []struct {
		name         string
		requirement  Requirement
		header       string
		principal    *model.Principal
		err          error
		wantStatus   int
		wantReached  bool
		wantResolved int
		wantAuthed   int
	}{
		{
			name:        "no header",
			requirement: RequireAdmin,
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name:        "wrong scheme",
			requirement: RequireAdmin,
			header:      "Basic cm9vdDphZG1pbg==",
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name:        "empty bearer",
			requirement: RequireAuthenticated,
			header:      "Bearer   ",
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name:        "authenticated skips tier lookup",
			requirement: RequireAuthenticated,
			header:      "Bearer tok",
			principal:   &model.Principal{UserID: "u1"},
			wantStatus:  http.StatusNoContent,
			wantReached: true,
			wantAuthed:  1,
		},
		{
			name:         "lowercase scheme accepted",
			requirement:  RequireSupervisor,
			header:       "bearer tok",
			principal:    &model.Principal{UserID: "u1", Tier: model.PermissionSupervisor, TierResolved: true},
			wantStatus:   http.StatusNoContent,
			wantReached:  true,
			wantResolved: 1,
		},
		{
			name:         "admin passes supervisor gate",
			requirement:  RequireSupervisor,
			header:       "Bearer tok",
			principal:    &model.Principal{UserID: "u1", Tier: model.PermissionAdmin, TierResolved: true},
			wantStatus:   http.StatusNoContent,
			wantReached:  true,
			wantResolved: 1,
		},
		{
			name:         "tier too low",
			requirement:  RequireAdmin,
			header:       "Bearer tok",
			principal:    &model.Principal{UserID: "u1", Tier: model.PermissionSupervisor, TierResolved: true},
			wantStatus:   http.StatusUnauthorized,
			wantResolved: 1,
		},
		{
			name:         "invalid token",
			requirement:  RequireSupervisor,
			header:       "Bearer tok",
			err:          model.ErrUnauthorized,
			wantStatus:   http.StatusUnauthorized,
			wantResolved: 1,
		},
		{
			name:         "storage failure",
			requirement:  RequireAdmin,
			header:       "Bearer tok",
			err:          model.Internal(errors.New("dial tcp: connection refused")),
			wantStatus:   http.StatusInternalServerError,
			wantResolved: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authz := &stubAuthorizer{principal: tt.principal, err: tt.err}
			var reached bool
			r := gatedRouter(authz, tt.requirement, &reached)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if reached != tt.wantReached {
				t.Fatalf("handler reached = %v, want %v", reached, tt.wantReached)
			}
			if authz.resolved != tt.wantResolved || authz.authenticated != tt.wantAuthed {
				t.Fatalf("resolve/authenticate calls = %d/%d, want %d/%d", authz.resolved, authz.authenticated, tt.wantResolved, tt.wantAuthed)
			}
			if authz.lastSecret != "" && authz.lastSecret != "tok" {
				t.Fatalf("secret passed = %q, want tok", authz.lastSecret)
			}
		})
	}
}

func TestGate_InternalErrorHidesCause(t *testing.T) {
	authz := &stubAuthorizer{err: model.Internal(errors.New("password authentication failed for user pickup"))}
	var reached bool
	r := gatedRouter(authz, RequireAdmin, &reached)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	want := `{"Code":"InternalServerError","Message":"Internal server error"}`
	if w.Body.String() != want {
		t.Fatalf("body = %s, want %s", w.Body.String(), want)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code model.ErrorCode
		want int
	}{
		{model.CodeIncorrectCredentials, http.StatusBadRequest},
		{model.CodeBadRequest, http.StatusBadRequest},
		{model.CodeCheckViolation, http.StatusBadRequest},
		{model.CodeForeignKeyError, http.StatusBadRequest},
		{model.CodeUniqueViolation, http.StatusBadRequest},
		{model.CodeUnauthorized, http.StatusUnauthorized},
		{model.CodeNotFound, http.StatusNotFound},
		{model.CodeTooManyRequests, http.StatusTooManyRequests},
		{model.CodeInternalError, http.StatusInternalServerError},
		{model.CodeHashingError, http.StatusInternalServerError},
		{model.ErrorCode("SomethingNew"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.code); got != tt.want {
			t.Errorf("StatusFor(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Bearer abc", "abc", true},
		{"BEARER abc ", "abc", true},
		{"Token abc", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"absent", "", false},
		{"ulid", "01ARZ3NDEKTSV4RRFFQ69G5FAV", true},
		{"caller id", "req-42.retry_1:a", true},
		{"space", "req 42", false},
		{"control chars", "req\x1b[31m", false},
		{"non ascii", "r\u00e9q", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(requestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if tt.keep {
				if got != tt.header {
					t.Fatalf("request id = %q, want %q", got, tt.header)
				}
				return
			}
			if _, err := ulid.ParseStrict(got); err != nil {
				t.Fatalf("request id = %q, want a fresh ulid: %v", got, err)
			}
		})
	}
}
