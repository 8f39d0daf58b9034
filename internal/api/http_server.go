package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"staybook/internal/config"
	"staybook/internal/domain"
	"staybook/internal/export"
	"staybook/internal/metrics"
	"staybook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer is the thin boundary adapter in front of the reservation
// workflow. It does request decoding, auth and error mapping; every business
// decision lives below it.
type HTTPServer struct {
	cfg     *config.APIConfig
	svc     *service.ReservationService
	exports config.ExportConfig
	server  *http.Server
	auth    *HTTPAuth
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, exports config.ExportConfig, svc *service.ReservationService, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, svc: svc, exports: exports, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bookings", srv.handleReserve)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", srv.transitionHandler("confirm"))
	mux.HandleFunc("POST /api/v1/bookings/{id}/reject", srv.transitionHandler("reject"))
	mux.HandleFunc("POST /api/v1/bookings/{id}/complete", srv.transitionHandler("complete"))
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", srv.transitionHandler("cancel"))
	mux.HandleFunc("POST /api/v1/reports/occupancy", srv.handleOccupancyReport)
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the full middleware chain for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

type reserveRequest struct {
	UserID    string `json:"user_id"`
	UnitID    string `json:"unit_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reserve")

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id must be a uuid")
		return
	}
	unitID, err := uuid.Parse(req.UnitID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unit_id must be a uuid")
		return
	}
	start, err := time.Parse(domain.DateLayout, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(domain.DateLayout, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}

	bookingID, err := s.svc.Reserve(r.Context(), userID, unitID, start, end)
	if err != nil {
		s.writeBusinessError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"booking_id": bookingID.String()})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_booking")

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "booking id must be a uuid")
		return
	}

	booking, err := s.svc.GetBooking(r.Context(), id)
	if err != nil {
		s.writeBusinessError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookingResponse(booking))
}

func (s *HTTPServer) transitionHandler(name string) http.HandlerFunc {
	var fn func(context.Context, uuid.UUID) error
	switch name {
	case "confirm":
		fn = s.svc.Confirm
	case "reject":
		fn = s.svc.Reject
	case "complete":
		fn = s.svc.Complete
	case "cancel":
		fn = s.svc.Cancel
	}

	return func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(name)

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "booking id must be a uuid")
			return
		}

		if err := fn(r.Context(), id); err != nil {
			s.writeBusinessError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type occupancyReportRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (s *HTTPServer) handleOccupancyReport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("occupancy_report")

	var req occupancyReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := time.Parse(domain.DateLayout, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(domain.DateLayout, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}

	units, err := s.svc.ListUnits(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	bookings, err := s.svc.GetBookingsByDateRange(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	path, err := export.WriteOccupancyReport(s.exports.Path, start, end, units, bookings)
	if err != nil {
		s.logger.Error().Err(err).Msg("occupancy report failed")
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) writeBusinessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrUnitNotFound),
		errors.Is(err, domain.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrCurrencyMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBookingOverlap),
		errors.Is(err, domain.ErrNotReserved),
		errors.Is(err, domain.ErrNotConfirmed),
		errors.Is(err, domain.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(startedAt)).
			Msg("http request")
	})
}

func bookingResponse(b *domain.Booking) map[string]any {
	resp := map[string]any{
		"id":                  b.ID().String(),
		"unit_id":             b.UnitID().String(),
		"user_id":             b.UserID().String(),
		"period_start":        b.Period().Start.Format(domain.DateLayout),
		"period_end":          b.Period().End.Format(domain.DateLayout),
		"price_for_period":    b.PriceForPeriod().Amount,
		"cleaning_fee":        b.CleaningFee().Amount,
		"amenities_up_charge": b.AmenitiesUpCharge().Amount,
		"total_price":         b.TotalPrice().Amount,
		"currency":            b.TotalPrice().Currency,
		"status":              b.Status(),
		"created_on_utc":      b.CreatedOnUtc(),
	}
	if t := b.ConfirmedOnUtc(); t != nil {
		resp["confirmed_on_utc"] = t
	}
	if t := b.RejectedOnUtc(); t != nil {
		resp["rejected_on_utc"] = t
	}
	if t := b.CompletedOnUtc(); t != nil {
		resp["completed_on_utc"] = t
	}
	if t := b.CancelledOnUtc(); t != nil {
		resp["cancelled_on_utc"] = t
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
