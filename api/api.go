package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chirper/chirper/api/validator"
	"github.com/chirper/chirper/queue"
	"github.com/chirper/chirper/ratelimit"
)

// ErrNotFound is returned by a DB when no chirp matches the given ID.
var ErrNotFound = errors.New("chirp not found")

// A DB provides a storage layer that persists chirps.
type DB interface {
	ListApprovedChirps(ctx context.Context, limit int, offset int, excludeIDs ...string) ([]Chirp, error)
	InsertChirp(ctx context.Context, c Chirp) (Chirp, error)
	GetChirp(ctx context.Context, id string) (Chirp, error)
	UpdateChirpMessage(ctx context.Context, id, message string) (Chirp, error)
	DeleteChirp(ctx context.Context, id string) error
}

// A Cache provides a storage layer that caches approved chirps.
type Cache interface {
	ListChirps(ctx context.Context) ([]Chirp, error)
	RemoveChirp(ctx context.Context, id string) error
}

// A Throttle gates chirp submissions per user before the moderation pipeline
// is involved.
type Throttle interface {
	Admit(ctx context.Context, userID string) (ratelimit.Outcome, error)
}

// A QuotaStatus reports the state of the daily AI moderation budget.
type QuotaStatus interface {
	Remaining(ctx context.Context) int
	SecondsUntilReset(ctx context.Context) int
	StatusMessage(ctx context.Context) string
}

// An Enqueuer schedules asynchronous moderation of a chirp.
type Enqueuer interface {
	Enqueue(ctx context.Context, chirpID string) (queue.Job, error)
}

// API provides the REST endpoints for the application.
type API struct {
	Logger   *slog.Logger
	DB       DB
	Cache    Cache
	Throttle Throttle
	Quota    QuotaStatus
	Queue    Enqueuer
	Val      *validator.Validator

	once sync.Once
	mux  *http.ServeMux
}

// pageSize defines the number of chirps returned by the listing endpoint.
var pageSize = 50

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /chirps", a.listChirps)
	mux.HandleFunc("POST /chirps", a.createChirp)
	mux.HandleFunc("PUT /chirps/{chirpID}", a.updateChirp)
	mux.HandleFunc("DELETE /chirps/{chirpID}", a.deleteChirp)
	mux.HandleFunc("GET /moderation/status", a.moderationStatus)

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

// identity extracts the authenticated user from the request. Authentication
// itself is handled upstream; an absent identity is an authorization failure,
// never a throttle decision.
func (a *API) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		a.respondError(w, http.StatusUnauthorized, errors.New("missing X-User-ID header"), "Authentication required")
		return "", false
	}
	return userID, true
}

// admit runs the submission throttle for the user and writes the throttled
// response when the limit is hit.
func (a *API) admit(w http.ResponseWriter, r *http.Request, userID string) bool {
	outcome, err := a.Throttle.Admit(r.Context(), userID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not check rate limit")
		return false
	}
	if !outcome.Allowed {
		type response struct {
			Error             string `json:"error"`
			RetryAfterSeconds int    `json:"retry_after_seconds"`
		}
		a.respond(w, http.StatusTooManyRequests, response{
			Error:             "You've reached the limit of 10 chirps per hour. Please wait before posting again.",
			RetryAfterSeconds: outcome.RetryAfterSeconds,
		})
		return false
	}
	return true
}

func (a *API) listChirps(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Chirps []Chirp `json:"chirps"`
	}

	page := 1

	// Get approved chirps from cache
	chirps, err := a.Cache.ListChirps(r.Context())
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list chirps")
		return
	}
	a.Logger.Info("Got chirps from cache", "count", len(chirps))

	// Get any remaining chirps from DB
	chirpIDs := make([]string, len(chirps))
	for i, c := range chirps {
		chirpIDs[i] = c.ID
	}

	dbChirps, err := a.DB.ListApprovedChirps(r.Context(), pageSize, pageSize*(page-1), chirpIDs...)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list chirps")
		return
	}

	a.Logger.Info("Got remaining chirps from DB", "count", len(dbChirps))
	chirps = append(chirps, dbChirps...)
	if chirps == nil {
		chirps = []Chirp{}
	}

	a.respond(w, http.StatusOK, response{Chirps: chirps})
}

func (a *API) createChirp(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Message string `json:"message" validate:"required,max=255"`
		}
		response struct {
			ID               string `json:"id"`
			UserID           string `json:"user_id"`
			Message          string `json:"message"`
			ModerationStatus string `json:"moderation_status"`
			CreatedAt        string `json:"created_at"`
		}
	)

	userID, ok := a.identity(w, r)
	if !ok {
		return
	}
	if !a.admit(w, r, userID) {
		return
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}

	if valid := a.validateBody(w, &body); !valid {
		return
	}

	if err := r.Body.Close(); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not close request body")
		return
	}

	c, err := a.DB.InsertChirp(r.Context(), Chirp{
		UserID:  userID,
		Message: body.Message,
	})
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not insert chirp")
		return
	}

	if _, err := a.Queue.Enqueue(r.Context(), c.ID); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not queue moderation")
		return
	}

	a.respond(w, http.StatusAccepted, response{
		ID:               c.ID,
		UserID:           c.UserID,
		Message:          c.Message,
		ModerationStatus: string(c.ModerationStatus),
		CreatedAt:        c.CreatedAt.Format(time.RFC1123),
	})
}

func (a *API) updateChirp(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Message string `json:"message" validate:"required,max=255"`
		}
		response struct {
			ID               string `json:"id"`
			UserID           string `json:"user_id"`
			Message          string `json:"message"`
			ModerationStatus string `json:"moderation_status"`
		}
	)

	userID, ok := a.identity(w, r)
	if !ok {
		return
	}
	if !a.admit(w, r, userID) {
		return
	}

	chirpID := r.PathValue("chirpID")

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}

	if valid := a.validateBody(w, &body); !valid {
		return
	}

	existing, err := a.DB.GetChirp(r.Context(), chirpID)
	if errors.Is(err, ErrNotFound) {
		a.respondError(w, http.StatusNotFound, err, "Chirp not found")
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not load chirp")
		return
	}
	if existing.UserID != userID {
		a.respondError(w, http.StatusForbidden, errors.New("user does not own chirp"), "You do not own this chirp")
		return
	}

	c, err := a.DB.UpdateChirpMessage(r.Context(), chirpID, body.Message)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not update chirp")
		return
	}

	// The edit leaves the approved set until it passes moderation again.
	if err := a.Cache.RemoveChirp(r.Context(), chirpID); err != nil {
		a.Logger.Error("Could not evict chirp from cache", "error", err.Error())
	}

	if _, err := a.Queue.Enqueue(r.Context(), c.ID); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not queue moderation")
		return
	}

	a.respond(w, http.StatusAccepted, response{
		ID:               c.ID,
		UserID:           c.UserID,
		Message:          c.Message,
		ModerationStatus: string(c.ModerationStatus),
	})
}

func (a *API) deleteChirp(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.identity(w, r)
	if !ok {
		return
	}

	chirpID := r.PathValue("chirpID")

	existing, err := a.DB.GetChirp(r.Context(), chirpID)
	if errors.Is(err, ErrNotFound) {
		a.respondError(w, http.StatusNotFound, err, "Chirp not found")
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not load chirp")
		return
	}
	if existing.UserID != userID {
		a.respondError(w, http.StatusForbidden, errors.New("user does not own chirp"), "You do not own this chirp")
		return
	}

	if err := a.DB.DeleteChirp(r.Context(), chirpID); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not delete chirp")
		return
	}

	if err := a.Cache.RemoveChirp(r.Context(), chirpID); err != nil {
		a.Logger.Error("Could not evict chirp from cache", "error", err.Error())
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) moderationStatus(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Remaining         int    `json:"remaining"`
		SecondsUntilReset int    `json:"seconds_until_reset"`
		Message           string `json:"message"`
	}

	a.respond(w, http.StatusOK, response{
		Remaining:         a.Quota.Remaining(r.Context()),
		SecondsUntilReset: a.Quota.SecondsUntilReset(r.Context()),
		Message:           a.Quota.StatusMessage(r.Context()),
	})
}
