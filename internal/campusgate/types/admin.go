package types

type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AdminLoginResponse struct {
	ChallengeID string `json:"challenge_id"`
	ExpiresAt   string `json:"expires_at"`
	Message     string `json:"message"`
}

type VerifyOTPRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"otp_code"`
}

type SessionResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresAt string `json:"expires_at"`
}
