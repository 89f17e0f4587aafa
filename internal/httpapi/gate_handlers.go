package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/service"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
)

const deviceKeyHeader = "X-Device-Key"

var errNoDeviceAuth = errors.New("device authentication unavailable")

// authenticateDevice resolves the X-Device-Key header.  ok=false means the
// caller is not a known reader and must get a 401.  err is a failure to
// check the key at all.  gateID is empty when no key was sent and auth is
// optional.
func (s *Server) authenticateDevice(r *http.Request) (gateID string, ok bool, err error) {
	key := strings.TrimSpace(r.Header.Get(deviceKeyHeader))
	if key == "" && !s.requireDeviceAuth {
		return "", true, nil
	}
	if s.devices == nil {
		return "", false, nil
	}

	id, known, err := s.devices.Authenticate(r.Context(), key)
	if err != nil {
		s.logger.Error("device auth failed", zap.Error(err))
		return "", false, fmt.Errorf("%w: %v", errNoDeviceAuth, err)
	}
	return id, known, nil
}

func writeUnauthorizedDevice(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized_device", "unknown or revoked device key")
}

func (s *Server) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	gateID, ok, authErr := s.authenticateDevice(r)
	if !ok && authErr == nil {
		writeUnauthorizedDevice(w)
		return
	}

	useProto := isProtobuf(r)
	var req types.AccessCheckRequest
	if useProto {
		body, err := readBody(r)
		if err == nil {
			req, err = decodeAccessCheck(body)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_protobuf", "invalid protobuf body")
			return
		}
	} else if err := decodeReaderJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	// The authenticated reader's identity wins over what the body claims.
	if gateID != "" {
		req.DeviceID = gateID
	}
	req.RemoteIP = s.clientIP(r)

	var (
		resp types.AccessCheckResponse
		err  error
	)
	if authErr != nil {
		// The reader could not be vetted; the scan is still answered and
		// audited as a system_error denial.
		resp, err = s.access.Fail(req, authErr)
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), s.accessDeadline)
		defer cancel()
		resp, err = s.access.Check(ctx, req)
	}

	status := http.StatusOK
	if err != nil {
		if !errors.Is(err, service.ErrInvalidRFID) {
			s.logger.Error("access check error", zap.Error(err))
		}
		status = http.StatusBadRequest
	}

	if useProto {
		writeProto(w, status, encodeAccessCheck(resp))
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	gateID, ok, err := s.authenticateDevice(r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "internal_error", errNoDeviceAuth.Error())
		return
	}
	if !ok {
		writeUnauthorizedDevice(w)
		return
	}

	useProto := isProtobuf(r)
	var req types.HeartbeatRequest
	if useProto {
		body, err := readBody(r)
		if err == nil {
			req, err = decodeHeartbeat(body)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_protobuf", "invalid protobuf body")
			return
		}
	} else if err := decodeReaderJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	if gateID != "" {
		claimed := strings.TrimSpace(req.GateID)
		if claimed != "" && claimed != gateID {
			writeError(w, http.StatusForbidden, "gate_mismatch", "gate_id does not match device key")
			return
		}
		req.GateID = gateID
	}
	if req.IP == "" {
		req.IP = s.clientIP(r)
	}

	resp, err := s.heartbeats.Record(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGateID) {
			writeError(w, http.StatusBadRequest, "invalid_gate_id", err.Error())
			return
		}
		s.logger.Error("heartbeat error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	if useProto {
		writeProto(w, http.StatusOK, encodeHeartbeat(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
