package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/domain"
	"staybook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	handler http.Handler
	unit    *domain.Unit
	user    *domain.User
}

func newAPIFixture(t *testing.T, cfg *config.APIConfig) *apiFixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(zerolog.NewConsoleWriter())

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	unit := &domain.Unit{
		ID:           uuid.New(),
		Name:         "Seaside Studio",
		NightlyPrice: domain.NewMoney(10000, "USD"),
		CleaningFee:  domain.NewMoney(2000, "USD"),
	}
	require.NoError(t, db.CreateUnit(ctx, unit))

	user := &domain.User{ID: uuid.New(), Name: "Guest", Email: "guest@example.com"}
	require.NoError(t, db.CreateUser(ctx, user))

	svc := service.NewReservationService(db, service.SystemClock{}, &logger)
	srv := NewHTTPServer(cfg, config.ExportConfig{Path: t.TempDir()}, svc, &logger)

	return &apiFixture{handler: srv.Handler(), unit: unit, user: user}
}

func openAPIConfig() *config.APIConfig {
	return &config.APIConfig{Enabled: true, Port: 0}
}

func (f *apiFixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) reserve(t *testing.T, start, end string) (uuid.UUID, *httptest.ResponseRecorder) {
	t.Helper()
	body := `{"user_id":"` + f.user.ID.String() + `","unit_id":"` + f.unit.ID.String() +
		`","start_date":"` + start + `","end_date":"` + end + `"}`
	rec := f.do(t, http.MethodPost, "/api/v1/bookings", body, nil)
	if rec.Code != http.StatusCreated {
		return uuid.Nil, rec
	}
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id, err := uuid.Parse(resp["booking_id"])
	require.NoError(t, err)
	return id, rec
}

func TestReserveEndpoint(t *testing.T) {
	f := newAPIFixture(t, openAPIConfig())

	id, rec := f.reserve(t, "2099-01-01", "2099-01-10")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEqual(t, uuid.Nil, id)

	// Fetch it back.
	rec = f.do(t, http.MethodGet, "/api/v1/bookings/"+id.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var booking map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booking))
	assert.Equal(t, domain.StatusReserved, booking["status"])
	assert.Equal(t, "2099-01-01", booking["period_start"])
	assert.Equal(t, float64(92000), booking["total_price"])
}

func TestReserveEndpointValidation(t *testing.T) {
	f := newAPIFixture(t, openAPIConfig())

	rec := f.do(t, http.MethodPost, "/api/v1/bookings", "not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"user_id":"nope","unit_id":"` + f.unit.ID.String() + `","start_date":"2099-01-01","end_date":"2099-01-10"}`
	rec = f.do(t, http.MethodPost, "/api/v1/bookings", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Inverted range.
	_, rec = f.reserve(t, "2099-01-10", "2099-01-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveEndpointUnknownUser(t *testing.T) {
	f := newAPIFixture(t, openAPIConfig())

	body := `{"user_id":"` + uuid.NewString() + `","unit_id":"` + f.unit.ID.String() +
		`","start_date":"2099-01-01","end_date":"2099-01-10"}`
	rec := f.do(t, http.MethodPost, "/api/v1/bookings", body, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReserveEndpointOverlapConflict(t *testing.T) {
	f := newAPIFixture(t, openAPIConfig())

	_, rec := f.reserve(t, "2099-01-10", "2099-01-20")
	require.Equal(t, http.StatusCreated, rec.Code)

	_, rec = f.reserve(t, "2099-01-15", "2099-01-25")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	f := newAPIFixture(t, openAPIConfig())

	id, rec := f.reserve(t, "2099-01-01", "2099-01-10")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+id.String()+"/confirm", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Confirming twice is a state conflict.
	rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+id.String()+"/confirm", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+id.String()+"/cancel", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/bookings/"+id.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var booking map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booking))
	assert.Equal(t, domain.StatusCancelled, booking["status"])
}

func TestGetBookingNotFound(t *testing.T) {
	f := newAPIFixture(t, openAPIConfig())

	rec := f.do(t, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOccupancyReportEndpoint(t *testing.T) {
	f := newAPIFixture(t, openAPIConfig())

	_, rec := f.reserve(t, "2099-01-01", "2099-01-05")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/reports/occupancy",
		`{"start_date":"2099-01-01","end_date":"2099-01-31"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["path"], "occupancy_2099-01-01_to_2099-01-31.xlsx")
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := &config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: "secret-key", Name: "tests"}},
		},
	}
	f := newAPIFixture(t, cfg)

	// Missing and wrong keys are rejected.
	rec := f.do(t, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "",
		map[string]string{"x-api-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The right key gets through to the handler.
	rec = f.do(t, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "",
		map[string]string{"x-api-key": "secret-key"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Health stays open for probes.
	rec = f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := &config.APIConfig{
		Enabled:   true,
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2},
	}
	f := newAPIFixture(t, cfg)

	path := "/api/v1/bookings/" + uuid.NewString()
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, path, "", nil).Code)
}
