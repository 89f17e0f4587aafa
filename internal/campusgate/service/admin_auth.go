package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account locked")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrInvalidOTP         = errors.New("invalid or expired otp")
	ErrUnauthorized       = errors.New("unauthorized")
)

type AuthConfig struct {
	SessionTTL       time.Duration // default 8h
	OTPTTL           time.Duration // default 5m
	OTPAttempts      int           // default 5
	MaxFailures      int           // default 5, then the account locks
	LockDuration     time.Duration // default 15m
	UsernameAttempts int           // default 3 per UsernameWindow
	UsernameWindow   time.Duration // default 10m
}

func (c *AuthConfig) defaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 8 * time.Hour
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = 5 * time.Minute
	}
	if c.OTPAttempts <= 0 {
		c.OTPAttempts = 5
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 15 * time.Minute
	}
	if c.UsernameAttempts <= 0 {
		c.UsernameAttempts = 3
	}
	if c.UsernameWindow <= 0 {
		c.UsernameWindow = 10 * time.Minute
	}
}

const (
	kvLoginPrefix    = "login:"
	kvOTPPrefix      = "otp:"
	kvOTPTriesPrefix = "otp-tries:"
	kvSessionPrefix  = "session:"
)

// AdminAuth is the two-step admin login: password, then a TOTP code
// against a short-lived challenge.  Challenges, sessions and attempt
// counters live in the KV store.
type AdminAuth struct {
	admins store.AdminStore
	kv     store.KV
	cfg    AuthConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewAdminAuth(admins store.AdminStore, kv store.KV, cfg AuthConfig, logger *zap.Logger) *AdminAuth {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminAuth{
		admins: admins,
		kv:     kv,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Login checks the password and opens an OTP challenge.
func (a *AdminAuth) Login(ctx context.Context, username, password, ip string) (types.AdminLoginResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.AdminLoginResponse{}, ErrInvalidCredentials
	}

	n, err := a.kv.Incr(ctx, kvLoginPrefix+username, a.cfg.UsernameWindow)
	if err != nil {
		return types.AdminLoginResponse{}, fmt.Errorf("count login attempt: %w", err)
	}
	if n > int64(a.cfg.UsernameAttempts) {
		a.logger.Warn("admin login throttled", zap.String("username", username), zap.String("ip", ip))
		return types.AdminLoginResponse{}, ErrTooManyAttempts
	}

	admin, err := a.admins.FindAdmin(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return types.AdminLoginResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return types.AdminLoginResponse{}, fmt.Errorf("find admin: %w", err)
	}
	if !admin.IsActive {
		return types.AdminLoginResponse{}, ErrInvalidCredentials
	}

	now := a.now()
	if admin.Locked(now) {
		return types.AdminLoginResponse{}, ErrAccountLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		var lockUntil *time.Time
		if admin.FailedAttempts+1 >= a.cfg.MaxFailures {
			t := now.Add(a.cfg.LockDuration)
			lockUntil = &t
		}
		if err := a.admins.RecordLoginFailure(ctx, admin.ID, lockUntil); err != nil {
			return types.AdminLoginResponse{}, fmt.Errorf("record login failure: %w", err)
		}
		a.logger.Warn("admin login failed",
			zap.String("username", username),
			zap.String("ip", ip),
			zap.Bool("locked", lockUntil != nil),
		)
		return types.AdminLoginResponse{}, ErrInvalidCredentials
	}

	challenge := uuid.NewString()
	if err := a.kv.Set(ctx, kvOTPPrefix+challenge, admin.Username, a.cfg.OTPTTL); err != nil {
		return types.AdminLoginResponse{}, fmt.Errorf("store otp challenge: %w", err)
	}
	_ = a.kv.Delete(ctx, kvLoginPrefix+username)

	return types.AdminLoginResponse{
		ChallengeID: challenge,
		ExpiresAt:   now.Add(a.cfg.OTPTTL).Format(time.RFC3339),
		Message:     "OTP required",
	}, nil
}

// VerifyOTP completes a challenge and opens a session.
func (a *AdminAuth) VerifyOTP(ctx context.Context, challengeID, code string) (types.SessionResponse, error) {
	challengeID = strings.TrimSpace(challengeID)
	code = strings.TrimSpace(code)
	if challengeID == "" || code == "" {
		return types.SessionResponse{}, ErrInvalidOTP
	}

	username, err := a.kv.Get(ctx, kvOTPPrefix+challengeID)
	if errors.Is(err, store.ErrNotFound) {
		return types.SessionResponse{}, ErrInvalidOTP
	}
	if err != nil {
		return types.SessionResponse{}, fmt.Errorf("load otp challenge: %w", err)
	}

	tries, err := a.kv.Incr(ctx, kvOTPTriesPrefix+challengeID, a.cfg.OTPTTL)
	if err != nil {
		return types.SessionResponse{}, fmt.Errorf("count otp attempt: %w", err)
	}
	if tries > int64(a.cfg.OTPAttempts) {
		a.endChallenge(ctx, challengeID)
		return types.SessionResponse{}, ErrTooManyAttempts
	}

	admin, err := a.admins.FindAdmin(ctx, username)
	if err != nil {
		return types.SessionResponse{}, fmt.Errorf("find admin: %w", err)
	}

	now := a.now()
	ok, err := totp.ValidateCustom(code, admin.TOTPSecret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return types.SessionResponse{}, ErrInvalidOTP
	}
	a.endChallenge(ctx, challengeID)

	token := uuid.NewString()
	if err := a.kv.Set(ctx, kvSessionPrefix+token, admin.Username, a.cfg.SessionTTL); err != nil {
		return types.SessionResponse{}, fmt.Errorf("store session: %w", err)
	}
	if err := a.admins.RecordLoginSuccess(ctx, admin.ID, now); err != nil {
		a.logger.Warn("record login success failed", zap.String("username", admin.Username), zap.Error(err))
	}
	a.logger.Info("admin logged in", zap.String("username", admin.Username))

	return types.SessionResponse{
		Token:     token,
		Username:  admin.Username,
		ExpiresAt: now.Add(a.cfg.SessionTTL).Format(time.RFC3339),
	}, nil
}

// Authorize resolves a session token to its admin username.
func (a *AdminAuth) Authorize(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	username, err := a.kv.Get(ctx, kvSessionPrefix+token)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	return username, nil
}

func (a *AdminAuth) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return a.kv.Delete(ctx, kvSessionPrefix+token)
}

func (a *AdminAuth) endChallenge(ctx context.Context, id string) {
	_ = a.kv.Delete(ctx, kvOTPPrefix+id)
	_ = a.kv.Delete(ctx, kvOTPTriesPrefix+id)
}
