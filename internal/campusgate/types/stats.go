package types

type AccessSummary struct {
	TotalAttempts     int64   `json:"total_attempts"`
	GrantedAccess     int64   `json:"granted_access"`
	DeniedAccess      int64   `json:"denied_access"`
	SuccessRate       float64 `json:"success_rate"`
	AttemptsToday     int64   `json:"attempts_today"`
	AttemptsThisWeek  int64   `json:"attempts_this_week"`
	AttemptsThisMonth int64   `json:"attempts_this_month"`
}

type LocationCount struct {
	Location string `json:"access_location"`
	Count    int64  `json:"count"`
}

type StatsWindow struct {
	DaysAnalyzed int    `json:"days_analyzed"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

type AccessStatistics struct {
	Summary        AccessSummary    `json:"summary"`
	DenialReasons  map[string]int64 `json:"denial_reasons"`
	TopLocations   []LocationCount  `json:"top_locations"`
	RecentActivity []AccessLog      `json:"recent_activity"`
	Parameters     StatsWindow      `json:"parameters"`
	GeneratedAt    string           `json:"generated_at"`
}

type RecentActivity struct {
	Count       int         `json:"count"`
	Activity    []AccessLog `json:"activity"`
	Hours       int         `json:"hours"`
	Limit       int         `json:"limit"`
	Since       string      `json:"since"`
	GeneratedAt string      `json:"generated_at"`
}

type Dashboard struct {
	TotalCards     int64  `json:"total_cards"`
	ActiveCards    int64  `json:"active_cards"`
	ActiveStudents int64  `json:"active_students"`
	ActiveStaff    int64  `json:"active_staff"`
	ActiveSecurity int64  `json:"active_security"`
	TotalGates     int64  `json:"total_gates"`
	OnlineGates    int64  `json:"online_gates"`
	AttemptsToday  int64  `json:"attempts_today"`
	DeniedToday    int64  `json:"denied_today"`
	GeneratedAt    string `json:"generated_at"`
}
