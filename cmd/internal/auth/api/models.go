package authapi

import "time"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username    string  `json:"username"`
	Email       *string `json:"email,omitempty"`
	Password    string  `json:"password"`
	InviteToken string  `json:"invite_token,omitempty"`
}

type inviteCreateRequest struct {
	ExpiresInSeconds int64   `json:"expires_in_seconds,omitempty"`
	MaxUses          int     `json:"max_uses,omitempty"`
	Note             *string `json:"note,omitempty"`
}

type inviteCreateResponse struct {
	InviteID    string    `json:"invite_id"`
	InviteToken string    `json:"invite_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	MaxUses     int       `json:"max_uses"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email,omitempty"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        userResponse `json:"user"`
}

type meResponse struct {
	User userResponse `json:"user"`
}
