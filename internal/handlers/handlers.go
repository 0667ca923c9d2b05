package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"expense-tracker/internal/apperr"
	"expense-tracker/internal/auth"
	"expense-tracker/internal/events"
	"expense-tracker/internal/log"
	"expense-tracker/internal/models"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// IdentityContextKey is the context key for the authenticated identity.
	IdentityContextKey contextKey = "identity"

	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
)

// Store is the data access the handlers need. *storage.DB implements it.
type Store interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error)
	CreateExpense(ctx context.Context, userID int64, in models.ExpenseInput) (int64, error)
	UpdateExpense(ctx context.Context, userID, id int64, in models.ExpenseInput) (int64, error)
	DeleteExpense(ctx context.Context, userID, id int64) (int64, error)
	GetCategoryTotalsByMonth(ctx context.Context, userID int64, year, month int) ([]models.CategoryTotal, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store      Store
	tokens     *auth.TokenIssuer
	bcryptCost int
	events     events.Publisher
}

// NewHandlers creates a new Handlers instance. A nil publisher disables
// expense events.
func NewHandlers(store Store, tokens *auth.TokenIssuer, bcryptCost int, publisher events.Publisher) *Handlers {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Handlers{store: store, tokens: tokens, bcryptCost: bcryptCost, events: publisher}
}

// IdentityFromContext retrieves the authenticated identity from the request
// context.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(models.Identity)
	return id, ok
}

// AuthMiddleware requires an "Authorization: Bearer <token>" header carrying a
// valid, unexpired token. It short-circuits with 401 otherwise.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, r, apperr.Unauthenticated("missing authorization"))
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			writeError(w, r, apperr.Unauthenticated("invalid authorization"))
			return
		}

		identity, err := h.tokens.Verify(parts[1])
		if err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).DebugContext(r.Context(),
				"Token rejected", log.FieldError, err.Error())
			writeError(w, r, apperr.Unauthenticated("invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, identity.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the database answers within a short deadline.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentStorage).WarnContext(r.Context(), "Readiness check failed",
			log.FieldError, err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.CodeValidation, "invalid request body: "+err.Error(), err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(context.Background()).Error("Failed to encode response", log.FieldError, err.Error())
	}
}

// writeError reports err as {"error": message} with the status of its code.
// Server-side failures are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error(),
			"error_type", string(code),
		)
	}
	writeJSON(w, status, map[string]string{"error": apperr.Message(err)})
}
