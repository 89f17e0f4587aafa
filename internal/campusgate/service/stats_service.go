package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
)

const (
	DefaultStatsDays    = 30
	MaxStatsDays        = 365
	DefaultRecentHours  = 24
	MaxRecentHours      = 24 * 7
	DefaultRecentLimit  = 20
	MaxRecentLimit      = 200
	topLocationsLimit   = 10
	recentActivityLimit = 10
)

// StatsService derives dashboard figures from the audit log and the card,
// holder and gate stores.  It only reads.
type StatsService struct {
	logs         store.AccessLogStore
	cards        store.CardStore
	holders      store.HolderStore
	devices      *DeviceRegistry
	onlineWindow time.Duration
	now          func() time.Time
}

func NewStatsService(
	logs store.AccessLogStore,
	cards store.CardStore,
	holders store.HolderStore,
	devices *DeviceRegistry,
	onlineWindow time.Duration,
) *StatsService {
	if onlineWindow <= 0 {
		onlineWindow = 5 * time.Minute
	}
	return &StatsService{
		logs:         logs,
		cards:        cards,
		holders:      holders,
		devices:      devices,
		onlineWindow: onlineWindow,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AccessStatistics summarises all attempts, with the denial breakdown and
// top locations restricted to the last days days.
func (s *StatsService) AccessStatistics(ctx context.Context, days int) (types.AccessStatistics, error) {
	if days <= 0 {
		days = DefaultStatsDays
	}
	if days > MaxStatsDays {
		days = MaxStatsDays
	}
	now := s.now()
	start := now.AddDate(0, 0, -days)
	today := startOfDay(now)
	week := now.AddDate(0, 0, -7)
	month := now.AddDate(0, 0, -30)

	var out types.AccessStatistics
	var err error
	sum := &out.Summary

	if sum.TotalAttempts, err = s.logs.Count(ctx, store.CountFilter{}); err != nil {
		return out, fmt.Errorf("total attempts: %w", err)
	}
	if sum.GrantedAccess, err = s.logs.Count(ctx, store.CountFilter{Decision: store.DecisionGranted}); err != nil {
		return out, fmt.Errorf("granted attempts: %w", err)
	}
	if sum.DeniedAccess, err = s.logs.Count(ctx, store.CountFilter{Decision: store.DecisionDenied}); err != nil {
		return out, fmt.Errorf("denied attempts: %w", err)
	}
	sum.SuccessRate = successRate(sum.GrantedAccess, sum.TotalAttempts)

	if sum.AttemptsToday, err = s.logs.Count(ctx, store.CountFilter{Since: &today}); err != nil {
		return out, fmt.Errorf("attempts today: %w", err)
	}
	if sum.AttemptsThisWeek, err = s.logs.Count(ctx, store.CountFilter{Since: &week}); err != nil {
		return out, fmt.Errorf("attempts this week: %w", err)
	}
	if sum.AttemptsThisMonth, err = s.logs.Count(ctx, store.CountFilter{Since: &month}); err != nil {
		return out, fmt.Errorf("attempts this month: %w", err)
	}

	reasons, err := s.logs.CountByReason(ctx, start)
	if err != nil {
		return out, fmt.Errorf("denial reasons: %w", err)
	}
	out.DenialReasons = make(map[string]int64, len(reasons))
	for r, n := range reasons {
		out.DenialReasons[string(r)] = n
	}

	top, err := s.logs.TopLocations(ctx, start, topLocationsLimit)
	if err != nil {
		return out, fmt.Errorf("top locations: %w", err)
	}
	out.TopLocations = make([]types.LocationCount, 0, len(top))
	for _, lc := range top {
		out.TopLocations = append(out.TopLocations, types.LocationCount{Location: lc.Location, Count: lc.Count})
	}

	recent, err := s.logs.List(ctx, store.LogFilter{Limit: recentActivityLimit})
	if err != nil {
		return out, fmt.Errorf("recent activity: %w", err)
	}
	out.RecentActivity = AccessLogViews(recent)

	out.Parameters = types.StatsWindow{
		DaysAnalyzed: days,
		StartDate:    start.Format(time.RFC3339),
		EndDate:      now.Format(time.RFC3339),
	}
	out.GeneratedAt = now.Format(time.RFC3339)
	return out, nil
}

// RecentActivity lists attempts from the last hours hours, newest first.
func (s *StatsService) RecentActivity(ctx context.Context, hours, limit int) (types.RecentActivity, error) {
	hours = clamp(hours, DefaultRecentHours, MaxRecentHours)
	limit = clamp(limit, DefaultRecentLimit, MaxRecentLimit)

	now := s.now()
	since := now.Add(-time.Duration(hours) * time.Hour)
	logs, err := s.logs.List(ctx, store.LogFilter{From: &since, Limit: limit})
	if err != nil {
		return types.RecentActivity{}, fmt.Errorf("recent activity: %w", err)
	}

	views := AccessLogViews(logs)
	return types.RecentActivity{
		Count:       len(views),
		Activity:    views,
		Hours:       hours,
		Limit:       limit,
		Since:       since.Format(time.RFC3339),
		GeneratedAt: now.Format(time.RFC3339),
	}, nil
}

func (s *StatsService) Dashboard(ctx context.Context) (types.Dashboard, error) {
	now := s.now()
	today := startOfDay(now)
	var d types.Dashboard

	cards, err := s.cards.Counts(ctx)
	if err != nil {
		return d, fmt.Errorf("card counts: %w", err)
	}
	holders, err := s.holders.CountActive(ctx)
	if err != nil {
		return d, fmt.Errorf("holder counts: %w", err)
	}
	gates, err := s.devices.Counts(ctx, s.onlineWindow)
	if err != nil {
		return d, fmt.Errorf("gate counts: %w", err)
	}
	if d.AttemptsToday, err = s.logs.Count(ctx, store.CountFilter{Since: &today}); err != nil {
		return d, fmt.Errorf("attempts today: %w", err)
	}
	if d.DeniedToday, err = s.logs.Count(ctx, store.CountFilter{Decision: store.DecisionDenied, Since: &today}); err != nil {
		return d, fmt.Errorf("denied today: %w", err)
	}

	d.TotalCards, d.ActiveCards = cards.Total, cards.Active
	d.ActiveStudents, d.ActiveStaff, d.ActiveSecurity = holders.Students, holders.Staff, holders.Security
	d.TotalGates, d.OnlineGates = gates.Total, gates.Online
	d.GeneratedAt = now.Format(time.RFC3339)
	return d, nil
}

// AccessLogView converts an audit entry to its API shape.
func AccessLogView(e store.AccessLogEntry) types.AccessLog {
	v := types.AccessLog{
		LogID:          e.ID,
		RFIDNumber:     e.RFIDNumber,
		Decision:       string(e.Decision),
		DenialReason:   string(e.DenialReason),
		Location:       e.Location,
		DeviceID:       e.DeviceID,
		RemoteIP:       e.RemoteIP,
		Timestamp:      e.Timestamp.UTC().Format(time.RFC3339Nano),
		ResponseTimeMs: e.ResponseTimeMs,
	}
	if e.CardID != nil {
		v.CardID = *e.CardID
	}
	return v
}

func AccessLogViews(es []store.AccessLogEntry) []types.AccessLog {
	out := make([]types.AccessLog, 0, len(es))
	for _, e := range es {
		out = append(out, AccessLogView(e))
	}
	return out
}

func successRate(granted, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(granted)/float64(total)*10000) / 100
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
