// Package identity manages the budgeted principals behind the API:
// Telegram user registration, API key issuance and the administrative
// actions that mutate an identity's lifecycle.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	model "github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/storage"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

const (
	defaultTelegramBudget = 100
	defaultAPIKeyBudget   = 1000

	// API keys are 20 random bytes rendered as 40 hex characters.
	keyBytes = 20
)

// Defaults for new identities when the caller does not override them.
type Defaults struct {
	TelegramMaxRequests int
	APIKeyMaxRequests   int
}

// Service issues and administers identities.
type Service struct {
	store    storage.IdentityStore
	commands storage.CommandLogStore
	defaults Defaults
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates an identity service over the given stores.
func NewService(store storage.IdentityStore, commands storage.CommandLogStore, defaults Defaults, log *logger.Logger) *Service {
	if defaults.TelegramMaxRequests <= 0 {
		defaults.TelegramMaxRequests = defaultTelegramBudget
	}
	if defaults.APIKeyMaxRequests <= 0 {
		defaults.APIKeyMaxRequests = defaultAPIKeyBudget
	}
	return &Service{
		store:    store,
		commands: commands,
		defaults: defaults,
		log:      log,
		now:      time.Now,
	}
}

// TelegramProfile carries the fields a Telegram client reports about a user.
type TelegramProfile struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
	IsBot        bool   `json:"is_bot"`
}

// RegisterTelegramUser creates the identity on first sight and refreshes
// the profile fields on every later call. The returned flag reports
// whether a new identity was created.
func (s *Service) RegisterTelegramUser(ctx context.Context, profile TelegramProfile) (model.Identity, bool, error) {
	if profile.UserID == 0 {
		return model.Identity{}, false, errors.New("user_id is required")
	}

	now := s.now().UTC()
	existing, err := s.store.GetIdentityByTelegramID(ctx, profile.UserID)
	switch {
	case err == nil:
		existing.Username = profile.Username
		existing.FirstName = profile.FirstName
		existing.LastName = profile.LastName
		existing.LanguageCode = profile.LanguageCode
		existing.IsBot = profile.IsBot
		existing.LastSeen = now
		updated, err := s.store.UpdateIdentity(ctx, existing)
		if err != nil {
			return model.Identity{}, false, fmt.Errorf("update telegram user: %w", err)
		}
		return updated, false, nil
	case errors.Is(err, storage.ErrNotFound):
		created, err := s.store.CreateIdentity(ctx, model.Identity{
			Kind:           model.KindTelegram,
			Name:           profile.Username,
			TelegramUserID: profile.UserID,
			Username:       profile.Username,
			FirstName:      profile.FirstName,
			LastName:       profile.LastName,
			LanguageCode:   profile.LanguageCode,
			IsBot:          profile.IsBot,
			MaxRequests:    s.defaults.TelegramMaxRequests,
			Status:         model.StatusActive,
			LastResetAt:    now,
			LastSeen:       now,
		})
		if err != nil {
			return model.Identity{}, false, fmt.Errorf("create telegram user: %w", err)
		}
		s.log.WithFields(map[string]interface{}{
			"identity": created.ID,
			"telegram": profile.UserID,
		}).Info("telegram user registered")
		return created, true, nil
	default:
		return model.Identity{}, false, fmt.Errorf("lookup telegram user: %w", err)
	}
}

// TelegramUserInfo returns the identity registered for the Telegram user.
func (s *Service) TelegramUserInfo(ctx context.Context, userID int64) (model.Identity, error) {
	return s.store.GetIdentityByTelegramID(ctx, userID)
}

// IssueAPIKey creates a named key identity with a fresh random key.
func (s *Service) IssueAPIKey(ctx context.Context, name string, maxRequests int, expiresAt *time.Time) (model.Identity, error) {
	if name == "" {
		return model.Identity{}, errors.New("name is required")
	}
	if maxRequests <= 0 {
		maxRequests = s.defaults.APIKeyMaxRequests
	}

	key, err := newKey()
	if err != nil {
		return model.Identity{}, err
	}

	now := s.now().UTC()
	created, err := s.store.CreateIdentity(ctx, model.Identity{
		Kind:        model.KindAPIKey,
		Name:        name,
		Key:         key,
		ExpiresAt:   expiresAt,
		MaxRequests: maxRequests,
		Status:      model.StatusActive,
		LastResetAt: now,
		LastSeen:    now,
	})
	if err != nil {
		return model.Identity{}, fmt.Errorf("create api key: %w", err)
	}
	s.log.WithFields(map[string]interface{}{
		"identity": created.ID,
		"name":     name,
	}).Info("api key issued")
	return created, nil
}

// Authenticate resolves an API key to its identity. Callers decide what a
// missing identity means; expiry and status are the quota ledger's concern.
func (s *Service) Authenticate(ctx context.Context, key string) (model.Identity, error) {
	if key == "" {
		return model.Identity{}, storage.ErrNotFound
	}
	return s.store.GetIdentityByKey(ctx, key)
}

// Ban blocks the identity from all admission until reactivated.
func (s *Service) Ban(ctx context.Context, id string) (model.Identity, error) {
	return s.setStatus(ctx, id, model.StatusBanned)
}

// Deactivate soft-disables the identity. Identities are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, id string) (model.Identity, error) {
	return s.setStatus(ctx, id, model.StatusInactive)
}

// Activate restores a banned or inactive identity.
func (s *Service) Activate(ctx context.Context, id string) (model.Identity, error) {
	return s.setStatus(ctx, id, model.StatusActive)
}

func (s *Service) setStatus(ctx context.Context, id string, status model.Status) (model.Identity, error) {
	ident, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		return model.Identity{}, err
	}
	ident.Status = status
	updated, err := s.store.UpdateIdentity(ctx, ident)
	if err != nil {
		return model.Identity{}, err
	}
	s.log.WithFields(map[string]interface{}{
		"identity": id,
		"status":   string(status),
	}).Info("identity status changed")
	return updated, nil
}

// ResetCounter zeroes the identity's usage counter immediately.
func (s *Service) ResetCounter(ctx context.Context, id string) (model.Identity, error) {
	return s.store.ResetRequestCount(ctx, id, s.now().UTC())
}

// ExtendExpiry moves the key's expiry to the given time. A nil value
// removes the expiry entirely.
func (s *Service) ExtendExpiry(ctx context.Context, id string, until *time.Time) (model.Identity, error) {
	ident, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		return model.Identity{}, err
	}
	ident.ExpiresAt = until
	return s.store.UpdateIdentity(ctx, ident)
}

// List returns identities of the given kind, or all when kind is empty.
func (s *Service) List(ctx context.Context, kind model.Kind) ([]model.Identity, error) {
	return s.store.ListIdentities(ctx, kind)
}

// LogCommand appends a served-request record. Logging failures are
// reported to the caller's log, never to the client.
func (s *Service) LogCommand(ctx context.Context, identityID, command string) {
	if s.commands == nil {
		return
	}
	_, err := s.commands.AppendCommandLog(ctx, model.CommandLog{
		IdentityID: identityID,
		Command:    command,
	})
	if err != nil {
		s.log.WithError(err).WithField("identity", identityID).Warn("failed to append command log")
	}
}

func newKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
