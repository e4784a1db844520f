package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/feedback-hub/pkg/composables"
)

func TestProvideActor_ResolvesHeader(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	resolver := func(_ context.Context, id uuid.UUID) (*composables.Actor, error) {
		return &composables.Actor{ID: id, OrganizationID: orgID, Roles: []string{"admin"}}, nil
	}

	var got *composables.Actor
	h := ProvideActor("X-User-ID", resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		got, err = composables.UseActor(r.Context())
		require.NoError(t, err)
		gotOrg, err := composables.UseOrganizationID(r.Context())
		require.NoError(t, err)
		assert.Equal(t, orgID, gotOrg)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", userID.String())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, got)
	assert.Equal(t, userID, got.ID)
}

func TestProvideActor_AnonymousPassesThrough(t *testing.T) {
	called := false
	h := ProvideActor("X-User-ID", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, err := composables.UseActor(r.Context())
		assert.ErrorIs(t, err, composables.ErrNoActor)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestProvideActor_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
		status int
	}{
		{name: "malformed", header: "not-a-uuid", status: http.StatusUnauthorized},
		{name: "unknown", header: uuid.NewString(), err: ErrActorNotFound, status: http.StatusUnauthorized},
		{name: "lookup failure", header: uuid.NewString(), err: errors.New("db down"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolver := func(context.Context, uuid.UUID) (*composables.Actor, error) { return nil, tc.err }
			h := ProvideActor("X-User-ID", resolver)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-User-ID", tc.header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerPeriod: 1, Store: NewMemoryStore()})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
}

func TestWithLogger_RecoversPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()
	opts := DefaultLoggerOptions()
	opts.LogResponseBody = false

	h := WithLogger(logger, opts)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/hierarchy/tree/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
	var sawPanic bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "panic recovered in request handler" {
			sawPanic = true
		}
	}
	assert.True(t, sawPanic)
}

func TestWithLogger_ProvidesRequestScope(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := WithLogger(logger, DefaultLoggerOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-7", composables.UseRequestID(r.Context()))
		assert.Equal(t, "req-7", composables.UseLogger(r.Context()).Data["request-id"])
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireActor(t *testing.T) {
	h := RequireActor()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(composables.WithActor(req.Context(), &composables.Actor{ID: uuid.New()}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
