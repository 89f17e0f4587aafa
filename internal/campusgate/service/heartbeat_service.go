package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
)

var ErrInvalidGateID = errors.New("gate_id is required")

// HeartbeatService records gate liveness reports.
type HeartbeatService struct {
	heartbeats store.HeartbeatStore
	registry   *DeviceRegistry
	logger     *zap.Logger
	now        func() time.Time
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *DeviceRegistry, logger *zap.Logger) *HeartbeatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartbeatService{
		heartbeats: hs,
		registry:   reg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Record stores one heartbeat.  Heartbeats from unknown gates are kept
// too, flagged Known=false in the reply, so operators can find readers
// that need commissioning.
func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	gateID := strings.TrimSpace(req.GateID)
	if gateID == "" {
		return types.HeartbeatResponse{}, ErrInvalidGateID
	}

	known, err := s.registry.IsKnown(ctx, gateID)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	if err := s.registry.NoteSeen(ctx, gateID, known); err != nil {
		s.logger.Warn("mark gate seen failed", zap.String("gate_id", gateID), zap.Error(err))
	}
	if !known {
		s.logger.Info("heartbeat from unknown gate", zap.String("gate_id", gateID), zap.String("ip", req.IP))
	}

	now := s.now()
	if err := s.heartbeats.UpsertHeartbeat(ctx, gateID, store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    req,
	}); err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		GateID:     gateID,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}
