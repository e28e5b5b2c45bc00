// Package httpapi exposes the scraped price data and identity management
// over a REST API. Price routes are gated by API key authentication and the
// per-identity daily quota; administrative routes sit behind a shared token.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/metrics"
	identitysvc "github.com/arzwatch/arzwatch/internal/app/services/identity"
	"github.com/arzwatch/arzwatch/internal/app/services/quota"
	"github.com/arzwatch/arzwatch/internal/app/services/scrape"
	"github.com/arzwatch/arzwatch/internal/app/storage"
	"github.com/arzwatch/arzwatch/internal/middleware"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

// HeaderAdminToken authorizes the administrative routes.
const HeaderAdminToken = "Admin-Token"

// envelope is the response shape of every data route.
type envelope struct {
	Data        interface{} `json:"data,omitempty"`
	RetrievedAt string      `json:"retrievedAt,omitempty"`
	Message     string      `json:"message"`
}

// Deps bundles what the handler needs. Cache and Managers are optional.
type Deps struct {
	Snapshots  storage.SnapshotStore
	Identities *identitysvc.Service
	Ledger     *quota.Ledger
	Cache      *ResponseCache
	Managers   []*scrape.Manager
	AdminToken string
	Limiter    *middleware.RateLimiter
	CORS       []string
	Log        *logger.Logger
}

type handler struct {
	deps Deps
	log  *logger.Logger
}

// NewHandler builds the router with authentication, rate limiting, metrics
// and panic recovery applied.
func NewHandler(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recover(log))
	r.Use(middleware.Metrics)
	if len(deps.CORS) > 0 {
		r.Use(middleware.NewCORSMiddleware(deps.CORS).Handler)
	}

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	auth := middleware.NewAPIKeyAuth(deps.Identities, log)
	r.Group(func(gr chi.Router) {
		gr.Use(auth.Handler)
		if deps.Limiter != nil {
			gr.Use(deps.Limiter.Handler)
		}

		gr.Get("/tgju/{category}", h.tgju)
		gr.Get("/arzdigital/crypto", h.arzDigitalCrypto)
		gr.Post("/coinex/crypto", h.coinExCrypto)
		gr.Post("/telegram/users", h.registerTelegramUser)
		gr.Post("/telegram/users/info", h.telegramUserInfo)
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(h.requireAdmin)
		ar.Post("/keys", h.issueKey)
		ar.Get("/identities", h.listIdentities)
		ar.Post("/identities/{id}/ban", h.identityAction((*identitysvc.Service).Ban))
		ar.Post("/identities/{id}/activate", h.identityAction((*identitysvc.Service).Activate))
		ar.Post("/identities/{id}/deactivate", h.identityAction((*identitysvc.Service).Deactivate))
		ar.Post("/identities/{id}/reset", h.identityAction((*identitysvc.Service).ResetCounter))
		ar.Post("/identities/{id}/expiry", h.setExpiry)
		ar.Post("/scrape/{source}", h.triggerScrape)
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Price routes ------------------------------------------------------------

var tgjuCategories = map[string]market.Category{
	"gold":     market.CategoryGold,
	"coin":     market.CategoryCoin,
	"currency": market.CategoryCurrency,
}

func (h *handler) tgju(w http.ResponseWriter, r *http.Request) {
	category, ok := tgjuCategories[chi.URLParam(r, "category")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "unknown category")
		return
	}
	ident, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	h.servePrices(w, r, market.Key{Source: market.SourceTGJU, Category: category}, ident, string(category))
}

func (h *handler) arzDigitalCrypto(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	h.servePrices(w, r, market.Key{Source: market.SourceArzDigital, Category: market.CategoryCrypto}, ident, "crypto")
}

// coinExCrypto serves CoinEx data on behalf of a Telegram user. The caller
// authenticates with its own API key; the budget charged is the Telegram
// user's, identified by user_id in the body.
func (h *handler) coinExCrypto(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserID == 0 {
		writeMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	tgUser, err := h.deps.Identities.TelegramUserInfo(r.Context(), payload.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "telegram user not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.servePrices(w, r, market.Key{Source: market.SourceCoinEx, Category: market.CategoryCrypto}, tgUser, "crypto")
}

// servePrices runs the admission-read-charge sequence for one snapshot.
// A missing snapshot is not charged against the identity's budget.
func (h *handler) servePrices(w http.ResponseWriter, r *http.Request, key market.Key, ident identity.Identity, command string) {
	ctx := r.Context()

	if err := h.deps.Ledger.Admit(ctx, &ident); err != nil {
		writeMessage(w, quotaStatus(err), quotaMessage(err))
		return
	}

	cacheKey := "resp:" + key.String()
	if body, ok := h.deps.Cache.Get(ctx, cacheKey); ok {
		h.charge(ctx, &ident, command)
		writeRaw(w, http.StatusOK, body)
		return
	}

	snap, err := h.deps.Snapshots.GetSnapshot(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, fmt.Sprintf("No %s data found.", key.Category))
			return
		}
		h.internalError(w, r, err)
		return
	}

	body, err := json.Marshal(envelope{
		Data:        snap.Records,
		RetrievedAt: snap.RetrievedAt.UTC().Format(time.RFC3339),
		Message:     fmt.Sprintf("%s %s data retrieved successfully.", sourceTitle(key.Source), key.Category),
	})
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.deps.Cache.Set(ctx, cacheKey, body)
	h.charge(ctx, &ident, command)
	writeRaw(w, http.StatusOK, body)
}

func (h *handler) charge(ctx context.Context, ident *identity.Identity, command string) {
	if err := h.deps.Ledger.RecordUsage(ctx, ident); err != nil {
		h.log.WithError(err).WithField("identity", ident.ID).Warn("usage accounting failed after serve")
		return
	}
	h.deps.Identities.LogCommand(ctx, ident.ID, command)
}

// Telegram routes -----------------------------------------------------------

func (h *handler) registerTelegramUser(w http.ResponseWriter, r *http.Request) {
	var profile identitysvc.TelegramProfile
	if err := decodeJSON(r.Body, &profile); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, created, err := h.deps.Identities.RegisterTelegramUser(r.Context(), profile)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if created {
		writeMessage(w, http.StatusCreated, "Created")
		return
	}
	writeMessage(w, http.StatusOK, "Updated")
}

func (h *handler) telegramUserInfo(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil || payload.UserID == 0 {
		writeMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ident, err := h.deps.Identities.TelegramUserInfo(r.Context(), payload.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "telegram user not found")
			return
		}
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Data: map[string]interface{}{
			"request_count":     ident.RequestCount,
			"max_request_count": ident.MaxRequests,
			"created_at":        ident.CreatedAt.UTC().Format(time.RFC3339),
		},
		Message: "Telegram user info retrieved successfully.",
	})
}

// Admin routes ---------------------------------------------------------------

func (h *handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderAdminToken)
		if token == "" {
			writeMessage(w, http.StatusUnauthorized, "missing Admin-Token header")
			return
		}
		if h.deps.AdminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(h.deps.AdminToken)) != 1 {
			writeMessage(w, http.StatusForbidden, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) issueKey(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        string     `json:"name"`
		MaxRequests int        `json:"max_requests"`
		ExpiresAt   *time.Time `json:"expires_at"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ident, err := h.deps.Identities.IssueAPIKey(r.Context(), payload.Name, payload.MaxRequests, payload.ExpiresAt)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Data: ident, Message: "API key issued."})
}

func (h *handler) listIdentities(w http.ResponseWriter, r *http.Request) {
	kind := identity.Kind(r.URL.Query().Get("kind"))
	idents, err := h.deps.Identities.List(r.Context(), kind)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: idents, Message: "Identities retrieved successfully."})
}

type identityOp func(*identitysvc.Service, context.Context, string) (identity.Identity, error)

func (h *handler) identityAction(op identityOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ident, err := op(h.deps.Identities, r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeMessage(w, http.StatusNotFound, "identity not found")
				return
			}
			h.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: ident, Message: "Identity updated."})
	}
}

func (h *handler) setExpiry(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ident, err := h.deps.Identities.ExtendExpiry(r.Context(), chi.URLParam(r, "id"), payload.ExpiresAt)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "identity not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: ident, Message: "Expiry updated."})
}

func (h *handler) triggerScrape(w http.ResponseWriter, r *http.Request) {
	source := market.Source(chi.URLParam(r, "source"))
	var manager *scrape.Manager
	for _, m := range h.deps.Managers {
		if m.Source() == source {
			manager = m
			break
		}
	}
	if manager == nil {
		writeMessage(w, http.StatusNotFound, "unknown source")
		return
	}

	var categories []market.Category
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		categories = append(categories, market.Category(raw))
	}

	results := manager.Run(r.Context(), categories, true)
	summary := make(map[string]map[string]interface{}, len(results))
	for category, result := range results {
		entry := map[string]interface{}{
			"parsed":     result.Report.Parsed,
			"skipped":    result.Report.Skipped,
			"irrelevant": result.Report.Irrelevant,
			"duplicate":  result.Report.Duplicate,
		}
		if result.Err != nil {
			entry["error"] = result.Err.Error()
		}
		summary[string(category)] = entry
	}
	writeJSON(w, http.StatusOK, envelope{Data: summary, Message: "Scrape finished."})
}

// Helpers --------------------------------------------------------------------

func (h *handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Error("request failed")
	writeMessage(w, http.StatusInternalServerError, "internal error")
}

func quotaStatus(err error) int {
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded),
		errors.Is(err, quota.ErrBanned),
		errors.Is(err, quota.ErrInactive),
		errors.Is(err, quota.ErrExpired),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func quotaMessage(err error) string {
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		return "daily request quota exceeded"
	case errors.Is(err, quota.ErrBanned):
		return "identity is banned"
	case errors.Is(err, quota.ErrInactive):
		return "identity is inactive"
	case errors.Is(err, quota.ErrExpired):
		return "api key expired"
	case errors.Is(err, storage.ErrNotFound):
		return "identity not found"
	default:
		return "internal error"
	}
}

func sourceTitle(source market.Source) string {
	switch source {
	case market.SourceTGJU:
		return "TGJU"
	case market.SourceArzDigital:
		return "ArzDigital"
	case market.SourceCoinEx:
		return "Coinex"
	default:
		return string(source)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Message: message})
}
