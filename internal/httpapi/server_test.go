package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/service"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/memory"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
	"github.com/BrandonDHaskell/CampusGate/server/internal/httpapi"
)

const (
	gateKey       = "k-main"
	adminPassword = "correct horse"
)

// directSink appends synchronously so tests can read the log right away.
type directSink struct{ logs *memory.AccessLogStore }

func (s directSink) Record(e store.AccessLogEntry) bool {
	return s.logs.Append(context.Background(), e) == nil
}

// brokenDeviceStore cannot look keys up at all.
type brokenDeviceStore struct{ *memory.DeviceStore }

func (brokenDeviceStore) Authenticate(context.Context, []byte) (string, bool, error) {
	return "", false, errors.New("db down")
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	ts         *httptest.Server
	logs       *memory.AccessLogStore
	totpSecret string
}

type envOptions struct {
	requireAuth    bool
	loginBurst     int
	health         store.Pinger
	devices        store.DeviceStore
	trustedProxies []string
}

// newTestEnv wires the full dependency graph over in-memory stores.
func newTestEnv(t *testing.T, opt envOptions) testEnv {
	t.Helper()
	ctx := context.Background()

	dir := memory.NewDirectory()
	stu := &store.Student{ID: "stu-1", RegistrationNumber: "REG001", FirstName: "Ada", Surname: "Lovelace", IsActive: true}
	require.NoError(t, dir.SaveHolder(ctx, stu))
	require.NoError(t, dir.IssueCard(ctx, store.Card{ID: "card-1", RFIDNumber: "CARD001", Holder: stu, IsActive: true}))

	logs := memory.NewAccessLogStore()
	if opt.devices == nil {
		opt.devices = memory.NewDeviceStore([]string{"gate-main:" + gateKey})
	}
	devices := service.NewDeviceRegistry(opt.devices)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "CampusGate", AccountName: "admin"})
	require.NoError(t, err)
	admins := memory.NewAdminStore()
	require.NoError(t, admins.SaveAdmin(ctx, store.Admin{
		ID: "adm-1", Username: "admin", PasswordHash: string(hash), TOTPSecret: key.Secret(), IsActive: true,
	}))

	logger := zap.NewNop()
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:            logger,
		Addr:              ":0",
		AccessService:     service.NewAccessService(dir, directSink{logs}, logger),
		HeartbeatService:  service.NewHeartbeatService(memory.New(), devices, logger),
		Devices:           devices,
		Auth:              service.NewAdminAuth(admins, memory.NewKV(), service.AuthConfig{}, logger),
		Cards:             service.NewCardRegistry(dir, logger),
		Stats:             service.NewStatsService(logs, dir, dir, devices, 0),
		AccessLogs:        logs,
		Health:            opt.health,
		RequireDeviceAuth: opt.requireAuth,
		TrustedProxies:    opt.trustedProxies,
		LoginBurst:        opt.loginBurst,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return testEnv{ts: ts, logs: logs, totpSecret: key.Secret()}
}

func (e testEnv) do(t *testing.T, method, path string, body any, header map[string]string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// login runs the password + OTP steps and returns a bearer header.
func (e testEnv) login(t *testing.T) map[string]string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/admin/login", types.AdminLoginRequest{Username: "admin", Password: adminPassword}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lr := decode[types.AdminLoginResponse](t, resp)

	code, err := totp.GenerateCode(e.totpSecret, time.Now().UTC())
	require.NoError(t, err)
	resp = e.do(t, http.MethodPost, "/v1/admin/verify-otp", types.VerifyOTPRequest{ChallengeID: lr.ChallengeID, Code: code}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[types.SessionResponse](t, resp)
	return map[string]string{"Authorization": "Bearer " + sess.Token}
}

var deviceHeader = map[string]string{"X-Device-Key": gateKey}

// ── Access check ─────────────────────────────────────────────────────────────

func TestAccessCheck_Granted(t *testing.T) {
	env := newTestEnv(t, envOptions{requireAuth: true})

	resp := env.do(t, http.MethodPost, "/v1/access/check",
		map[string]string{"rfid_number": "CARD001", "location": "Main Gate"}, deviceHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ar := decode[types.AccessCheckResponse](t, resp)
	assert.True(t, ar.AccessGranted)
	assert.Equal(t, "Access granted", ar.Message)
	require.NotNil(t, ar.Person)
	assert.Equal(t, "REG001", ar.Person.RegistrationNumber)

	entries := env.logs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "gate-main", entries[0].DeviceID, "device id comes from the key")
	assert.Equal(t, "127.0.0.1", entries[0].RemoteIP)
}

func TestAccessCheck_UnknownCardDenied(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/access/check", map[string]string{"rfid_number": "NOPE"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ar := decode[types.AccessCheckResponse](t, resp)
	assert.False(t, ar.AccessGranted)
	assert.Equal(t, "Invalid RFID", ar.Message)
	assert.Equal(t, "invalid_rfid", ar.DenialReason)
	assert.Nil(t, ar.Person)
}

func TestAccessCheck_BlankRFID_400WithoutLog(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/access/check", map[string]string{"rfid_number": "   "}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ar := decode[types.AccessCheckResponse](t, resp)
	assert.False(t, ar.AccessGranted)
	assert.Equal(t, "Invalid RFID", ar.Message)
	assert.Empty(t, env.logs.Entries())
}

func TestAccessCheck_InvalidJSON_400(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, err := http.Post(env.ts.URL+"/access/check", "application/json", bytes.NewReader([]byte(`{nope`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAccessCheck_ExtraFieldsFromFirmwareIgnored(t *testing.T) {
	env := newTestEnv(t, envOptions{requireAuth: true})

	resp := env.do(t, http.MethodPost, "/v1/access/check", map[string]any{
		"rfid_number": "CARD001",
		"timestamp":   "2026-03-02T09:30:00Z",
		"fw_version":  "2.1.0",
	}, deviceHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[types.AccessCheckResponse](t, resp).AccessGranted)
	assert.Len(t, env.logs.Entries(), 1)
}

func TestAccessCheck_DeviceStoreDown_SystemErrorDenial(t *testing.T) {
	env := newTestEnv(t, envOptions{
		requireAuth: true,
		devices:     brokenDeviceStore{memory.NewDeviceStore(nil)},
	})

	resp := env.do(t, http.MethodPost, "/v1/access/check",
		map[string]string{"rfid_number": "CARD001", "location": "Main Gate"}, deviceHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ar := decode[types.AccessCheckResponse](t, resp)
	assert.False(t, ar.AccessGranted)
	assert.Equal(t, "System error", ar.Message)
	assert.Equal(t, "system_error", ar.DenialReason)
	assert.Nil(t, ar.Person)

	entries := env.logs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "CARD001", entries[0].RFIDNumber)
	assert.Equal(t, store.DecisionDenied, entries[0].Decision)
	assert.Equal(t, store.ReasonSystemError, entries[0].DenialReason)
	assert.Equal(t, ar.LogID, entries[0].ID)
}

func TestAccessCheck_ForwardedForIgnoredFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/access/check", map[string]string{"rfid_number": "CARD001"},
		map[string]string{"X-Forwarded-For": "1.2.3.4"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := env.logs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "127.0.0.1", entries[0].RemoteIP)
}

func TestAccessCheck_ForwardedForFromTrustedProxy(t *testing.T) {
	env := newTestEnv(t, envOptions{trustedProxies: []string{"127.0.0.0/8"}})

	resp := env.do(t, http.MethodPost, "/access/check", map[string]string{"rfid_number": "CARD001"},
		map[string]string{"X-Forwarded-For": "6.6.6.6, 203.0.113.9, 127.0.0.2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := env.logs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "203.0.113.9", entries[0].RemoteIP, "the nearest untrusted hop is the client")
}

func TestAccessCheck_DeviceKeyRequired(t *testing.T) {
	env := newTestEnv(t, envOptions{requireAuth: true})

	resp := env.do(t, http.MethodPost, "/v1/access/check", map[string]string{"rfid_number": "CARD001"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/access/check", map[string]string{"rfid_number": "CARD001"},
		map[string]string{"X-Device-Key": "stolen"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Empty(t, env.logs.Entries(), "rejected calls never reach the engine")
}

func TestAccessCheck_Protobuf(t *testing.T) {
	env := newTestEnv(t, envOptions{requireAuth: true})

	var body []byte
	body = protowire.AppendTag(body, 1, protowire.BytesType)
	body = protowire.AppendString(body, "CARD001")
	body = protowire.AppendTag(body, 2, protowire.BytesType)
	body = protowire.AppendString(body, "Library")

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/v1/access/check", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Device-Key", gateKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	fields := map[protowire.Number][]byte{}
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		require.GreaterOrEqual(t, n, 0)
		raw = raw[n:]
		m := protowire.ConsumeFieldValue(num, typ, raw)
		require.GreaterOrEqual(t, m, 0)
		fields[num] = raw[:m]
		raw = raw[m:]
	}

	granted, _ := protowire.ConsumeVarint(fields[1])
	assert.True(t, protowire.DecodeBool(granted))
	msg, _ := protowire.ConsumeString(fields[2])
	assert.Equal(t, "Access granted", msg)
	name, _ := protowire.ConsumeString(fields[6])
	assert.Equal(t, "Ada Lovelace", name)

	entries := env.logs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Library", entries[0].Location)
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func TestHeartbeat_KnownGate_OK(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/v1/heartbeat", map[string]any{"gate_id": "gate-main", "uptime_s": 42}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	hb := decode[types.HeartbeatResponse](t, resp)
	assert.True(t, hb.OK)
	assert.True(t, hb.Known)
	assert.Equal(t, "gate-main", hb.GateID)
}

func TestHeartbeat_UnknownGate_StillAccepted(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/v1/heartbeat", map[string]any{"gate_id": "unknown-device"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	hb := decode[types.HeartbeatResponse](t, resp)
	assert.True(t, hb.OK)
	assert.False(t, hb.Known)
}

func TestHeartbeat_BadRequests(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/v1/heartbeat", map[string]any{"uptime_s": 42}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/heartbeat", map[string]any{"gate_id": "gate-main", "surprise": true}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "unknown firmware fields are ignored")
}

func TestHeartbeat_DeviceStoreDown_503(t *testing.T) {
	env := newTestEnv(t, envOptions{
		requireAuth: true,
		devices:     brokenDeviceStore{memory.NewDeviceStore(nil)},
	})

	resp := env.do(t, http.MethodPost, "/v1/heartbeat", map[string]any{}, deviceHeader)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHeartbeat_KeyMustMatchGate(t *testing.T) {
	env := newTestEnv(t, envOptions{requireAuth: true})

	resp := env.do(t, http.MethodPost, "/v1/heartbeat", map[string]any{"gate_id": "gate-other"}, deviceHeader)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/heartbeat", map[string]any{}, deviceHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gate-main", decode[types.HeartbeatResponse](t, resp).GateID)
}

// ── Admin ────────────────────────────────────────────────────────────────────

func TestAdmin_RequiresSession(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, path := range []string{"/v1/access/logs", "/v1/access/statistics", "/v1/access/recent", "/v1/dashboard"} {
		resp := env.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := env.do(t, http.MethodPost, "/v1/cards/CARD001/deactivate", nil, map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdmin_LoginErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{loginBurst: 100})

	resp := env.do(t, http.MethodPost, "/v1/admin/login", types.AdminLoginRequest{Username: "admin", Password: "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", decode[map[string]string](t, resp)["error"])

	resp = env.do(t, http.MethodPost, "/v1/admin/verify-otp", types.VerifyOTPRequest{ChallengeID: "x", Code: "123456"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdmin_LoginRateLimitedPerIP(t *testing.T) {
	env := newTestEnv(t, envOptions{loginBurst: 2})

	var last int
	for i := 0; i < 3; i++ {
		resp := env.do(t, http.MethodPost, "/v1/admin/login", types.AdminLoginRequest{Username: "ghost", Password: "x"}, nil)
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestAdmin_LoginRateLimitIgnoresForgedForwardedFor(t *testing.T) {
	env := newTestEnv(t, envOptions{loginBurst: 1})

	var codes []int
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		resp := env.do(t, http.MethodPost, "/v1/admin/login", types.AdminLoginRequest{Username: "ghost", Password: "x"},
			map[string]string{"X-Forwarded-For": ip})
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestAdmin_CardLifecycleAndLogs(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	auth := env.login(t)

	resp := env.do(t, http.MethodPost, "/access/check", map[string]string{"rfid_number": "CARD001"}, nil)
	require.True(t, decode[types.AccessCheckResponse](t, resp).AccessGranted)

	resp = env.do(t, http.MethodPost, "/v1/cards/CARD001/deactivate", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cs := decode[types.CardStateResponse](t, resp)
	assert.False(t, cs.IsActive)
	assert.Equal(t, "Card deactivated successfully", cs.Message)

	resp = env.do(t, http.MethodPost, "/access/check", map[string]string{"rfid_number": "CARD001"}, nil)
	ar := decode[types.AccessCheckResponse](t, resp)
	assert.False(t, ar.AccessGranted)
	assert.Equal(t, "card_inactive", ar.DenialReason)

	resp = env.do(t, http.MethodPost, "/v1/cards/MISSING/activate", nil, auth)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/access/logs?decision=denied", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[types.AccessLogList](t, resp)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "card_inactive", list.Logs[0].DenialReason)

	resp = env.do(t, http.MethodGet, "/v1/access/logs/"+list.Logs[0].LogID, nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, list.Logs[0].LogID, decode[types.AccessLog](t, resp).LogID)

	resp = env.do(t, http.MethodGet, "/v1/access/logs/does-not-exist", nil, auth)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/access/logs?decision=maybe", nil, auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/access/statistics?days=7", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[types.AccessStatistics](t, resp)
	assert.EqualValues(t, 2, st.Summary.TotalAttempts)
	assert.InDelta(t, 50.0, st.Summary.SuccessRate, 0.001)
	assert.Equal(t, 7, st.Parameters.DaysAnalyzed)

	resp = env.do(t, http.MethodGet, "/v1/access/recent?hours=1&limit=1", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[types.RecentActivity](t, resp).Count)

	resp = env.do(t, http.MethodGet, "/v1/dashboard", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	d := decode[types.Dashboard](t, resp)
	assert.EqualValues(t, 1, d.TotalCards)
	assert.EqualValues(t, 0, d.ActiveCards)

	resp = env.do(t, http.MethodPost, "/v1/admin/logout", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/v1/dashboard", nil, auth)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ── Health ───────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestEnv(t, envOptions{health: pingerFunc(func(context.Context) error { return errors.New("db gone") })})
	resp = down.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
