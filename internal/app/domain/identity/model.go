// Package identity defines the budgeted principals that may call the API,
// either through an issued key or a Telegram account.
package identity

import "time"

// Kind distinguishes how an identity authenticates.
type Kind string

const (
	KindAPIKey   Kind = "api_key"
	KindTelegram Kind = "telegram"
)

// Status controls whether an identity is admitted at all.
type Status string

const (
	StatusActive   Status = "active"
	StatusBanned   Status = "banned"
	StatusInactive Status = "inactive"
)

// Identity is a principal with a daily request budget. API key identities
// fill Key and ExpiresAt; Telegram identities fill the Telegram* fields.
type Identity struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name,omitempty"`

	Key       string     `json:"key,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	TelegramUserID int64  `json:"telegram_user_id,omitempty"`
	Username       string `json:"username,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	LanguageCode   string `json:"language_code,omitempty"`
	IsBot          bool   `json:"is_bot,omitempty"`

	RequestCount int       `json:"request_count"`
	MaxRequests  int       `json:"max_requests"`
	Status       Status    `json:"status"`
	LastResetAt  time.Time `json:"last_reset_at"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the identity's key has stopped being valid. A key
// is valid strictly before its expiry instant; identities without an expiry
// never expire.
func (i Identity) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// CommandLog records one served request for auditing.
type CommandLog struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Command    string    `json:"command"`
	CreatedAt  time.Time `json:"created_at"`
}
