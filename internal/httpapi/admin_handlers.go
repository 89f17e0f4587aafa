package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/service"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
)

// requireAdmin rejects calls without a live admin session.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authorize(r.Context(), bearerToken(r))
		if err != nil {
			if !errors.Is(err, service.ErrUnauthorized) {
				s.logger.Error("session lookup failed", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "valid admin session required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, user)))
	}
}

// writeAuthError maps admin auth failures to status codes.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
	case errors.Is(err, service.ErrAccountLocked):
		writeError(w, http.StatusLocked, "account_locked", "account locked, try again later")
	case errors.Is(err, service.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too_many_attempts", "too many attempts, try again later")
	case errors.Is(err, service.ErrInvalidOTP):
		writeError(w, http.StatusUnauthorized, "invalid_otp", "invalid or expired OTP")
	default:
		s.logger.Error("admin auth error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.AdminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	resp, err := s.auth.Login(r.Context(), req.Username, req.Password, s.clientIP(r))
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	resp, err := s.auth.VerifyOTP(r.Context(), req.ChallengeID, req.Code)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		s.logger.Error("logout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseLogFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_query", err.Error())
		return
	}
	entries, err := s.logs.List(r.Context(), f)
	if err != nil {
		s.logger.Error("list access logs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	views := service.AccessLogViews(entries)
	writeJSON(w, http.StatusOK, types.AccessLogList{
		Count:  len(views),
		Limit:  store.ClampLimit(f.Limit),
		Offset: f.Offset,
		Logs:   views,
	})
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	e, err := s.logs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "access log not found")
		return
	}
	if err != nil {
		s.logger.Error("get access log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, service.AccessLogView(*e))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r.URL.Query(), "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_query", err.Error())
		return
	}
	st, err := s.stats.AccessStatistics(r.Context(), days)
	if err != nil {
		s.logger.Error("access statistics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hours, err := queryInt(q, "hours")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_query", err.Error())
		return
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_query", err.Error())
		return
	}
	ra, err := s.stats.RecentActivity(r.Context(), hours, limit)
	if err != nil {
		s.logger.Error("recent activity failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, ra)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.stats.Dashboard(r.Context())
	if err != nil {
		s.logger.Error("dashboard failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleActivateCard(w http.ResponseWriter, r *http.Request) {
	s.setCardState(w, r, s.cards.Activate)
}

func (s *Server) handleDeactivateCard(w http.ResponseWriter, r *http.Request) {
	s.setCardState(w, r, s.cards.Deactivate)
}

func (s *Server) setCardState(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (types.CardStateResponse, error)) {
	resp, err := fn(r.Context(), r.PathValue("rfid"))
	switch {
	case err == nil:
		s.logger.Info("card state set by admin",
			zap.String("admin", adminFromContext(r.Context())),
			zap.String("rfid", resp.RFIDNumber),
			zap.Bool("active", resp.IsActive),
		)
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, service.ErrInvalidRFID):
		writeError(w, http.StatusBadRequest, "invalid_rfid", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "card_not_found", "card not found")
	default:
		s.logger.Error("card state change failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func parseLogFilter(q url.Values) (store.LogFilter, error) {
	f := store.LogFilter{
		RFIDNumber:   q.Get("rfid_number"),
		CardID:       q.Get("card_id"),
		Decision:     store.Decision(q.Get("decision")),
		DenialReason: store.DenialReason(q.Get("denial_reason")),
		Location:     q.Get("location"),
		DeviceID:     q.Get("device_id"),
	}
	switch f.Decision {
	case "", store.DecisionGranted, store.DecisionDenied:
	default:
		return f, fmt.Errorf("decision must be granted or denied")
	}
	if f.DenialReason != "" && !f.DenialReason.Valid() {
		return f, fmt.Errorf("unknown denial_reason %q", f.DenialReason)
	}

	var err error
	if f.From, err = queryTime(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(q, "to"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

// queryInt returns 0 for a missing key.
func queryInt(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryTime(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC3339 timestamp", key)
	}
	return &t, nil
}
