package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"expense-tracker/internal/apperr"
	"expense-tracker/internal/events"
	"expense-tracker/internal/log"
	"expense-tracker/internal/models"
)

// identity returns the caller attached by AuthMiddleware.
func identity(r *http.Request) (models.Identity, error) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return id, apperr.Unauthenticated("missing authorization")
	}
	return id, nil
}

func expenseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid expense id")
	}
	return id, nil
}

// publish sends a change event. Failures are logged and never fail the request.
func (h *Handlers) publish(ctx context.Context, eventType string, userID, expenseID int64) {
	if err := h.events.Publish(ctx, events.NewExpenseEvent(eventType, userID, expenseID)); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentEvents).WarnContext(ctx, "Failed to publish expense event",
			log.FieldOperation, log.OpPublish,
			log.FieldExpenseID, expenseID,
			log.FieldError, err.Error(),
		)
	}
}

// ListExpenses returns all of the caller's expenses.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	who, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	expenses, err := h.store.ListExpenses(r.Context(), who.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).DebugContext(r.Context(), "Expenses listed",
		log.FieldOperation, log.OpList,
		"count", len(expenses),
	)
	writeJSON(w, http.StatusOK, expenses)
}

// CreateExpense stores a new expense for the caller. Title and a non-zero
// amount are required.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	who, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in models.ExpenseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" || in.Amount == nil || *in.Amount == 0 {
		writeError(w, r, apperr.Validation("title and amount required"))
		return
	}

	id, err := h.store.CreateExpense(r.Context(), who.UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).InfoContext(r.Context(), "Expense created",
		log.FieldOperation, log.OpCreate,
		log.FieldExpenseID, id,
	)
	h.publish(r.Context(), events.TypeExpenseCreated, who.UserID, id)
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// UpdateExpense overwrites the caller's expense. Fields missing from the body
// are cleared. Updating an expense the caller does not own is a silent no-op.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	who, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := expenseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in models.ExpenseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.store.UpdateExpense(r.Context(), who.UserID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).InfoContext(r.Context(), "Expense updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldExpenseID, id,
		log.FieldRows, n,
	)
	if n > 0 {
		h.publish(r.Context(), events.TypeExpenseUpdated, who.UserID, id)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// DeleteExpense removes the caller's expense. Deleting an expense the caller
// does not own is a silent no-op.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	who, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := expenseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.store.DeleteExpense(r.Context(), who.UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentExpense).InfoContext(r.Context(), "Expense deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldExpenseID, id,
		log.FieldRows, n,
	)
	if n > 0 {
		h.publish(r.Context(), events.TypeExpenseDeleted, who.UserID, id)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}
