package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitor-engine/internal/model"
)

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", model.ErrNotFound), http.StatusNotFound},
		{model.ErrInvalidSample, http.StatusBadRequest},
		{model.ErrInvalidFilter, http.StatusBadRequest},
		{model.ErrInvalidTransition, http.StatusConflict},
		{model.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getStatusCode(tt.err), tt.err.Error())
	}
}

func TestActorFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "administrator", actorFrom(r))

	r.Header.Set("X-User-Email", "ops@example.com")
	assert.Equal(t, "ops@example.com", actorFrom(r))
}

func TestParseDate(t *testing.T) {
	parsed, err := parseDate("2026-08-30")
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, 2026, parsed.Year())

	parsed, err = parseDate("2026-08-30T12:30:00Z")
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, 12, parsed.Hour())

	parsed, err = parseDate("")
	require.NoError(t, err)
	assert.Nil(t, parsed)

	_, err = parseDate("08/30/2026")
	assert.ErrorIs(t, err, model.ErrInvalidFilter)
}

func TestFilterFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/api/v1/audit/logs?user_id=u1&action_type=ip_block&severity=high&page=2&page_size=25&start_date=2026-08-01", nil)

	filter, err := filterFromQuery(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", filter.UserID)
	assert.Equal(t, "ip_block", filter.ActionType)
	assert.Equal(t, "high", filter.Severity)
	assert.Equal(t, 2, filter.Page)
	assert.Equal(t, 25, filter.PageSize)
	require.NotNil(t, filter.StartDate)
}

func TestFilterFromQueryRejectsBadPaging(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs?page=abc", nil)
	_, err := filterFromQuery(r)
	assert.ErrorIs(t, err, model.ErrInvalidFilter)

	r = httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs?page_size=abc", nil)
	_, err = filterFromQuery(r)
	assert.ErrorIs(t, err, model.ErrInvalidFilter)
}

func TestRespondWithJSON(t *testing.T) {
	w := httptest.NewRecorder()
	respondWithJSON(w, http.StatusCreated, successResponse(map[string]string{"id": "x"}, "created"))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestRespondWithError(t *testing.T) {
	w := httptest.NewRecorder()
	respondWithError(w, http.StatusNotFound, model.ErrNotFound, "Alert not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Contains(t, w.Body.String(), "Alert not found")
}
