package httputil

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperchat/internal/faults"
	"paperchat/internal/store"
)

func TestStatusFromErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"input fault", faults.Input("bad"), http.StatusBadRequest},
		{"extraction fault", faults.Extraction("corrupt", assert.AnError), http.StatusBadRequest},
		{"scope fault", faults.Scope("wrong tenant"), http.StatusForbidden},
		{"consistency fault", faults.Consistency("in flight"), http.StatusConflict},
		{"provider fault", faults.Provider("api down", assert.AnError), http.StatusBadGateway},
		{"missing document", store.ErrDocumentNotFound, http.StatusNotFound},
		{"missing session", store.ErrSessionNotFound, http.StatusNotFound},
		{"untyped error", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFromErr(tc.err))
		})
	}
}

func TestRequireTenant(t *testing.T) {
	handler := RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/papers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/papers", nil)
	req.Header.Set(TenantHeader, "acme")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDecode(t *testing.T) {
	type body struct {
		Name string `json:"name" validate:"required"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"s1"}`))
	var b body
	require.NoError(t, Decode(req, &b))
	assert.Equal(t, "s1", b.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	err := Decode(req, &body{})
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindInput))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	err = Decode(req, &body{})
	require.Error(t, err)
	assert.True(t, faults.IsKind(err, faults.KindInput))
}

func TestRecovererKeepsServing(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recoverer(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
