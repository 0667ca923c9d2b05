package handlers

import (
	"errors"
	"net/http"
	"strings"

	"expense-tracker/internal/apperr"
	"expense-tracker/internal/auth"
	"expense-tracker/internal/log"
	"expense-tracker/internal/storage"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		return c, err
	}
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" || c.Password == "" {
		return c, apperr.Validation("username and password required")
	}
	return c, nil
}

// Register creates a user account and returns its id and username.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(c.Password, h.bcryptCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), c.Username, hash)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "User registered",
		log.FieldOperation, log.OpRegister,
		log.FieldUserID, user.ID,
		log.FieldUsername, user.Username,
	)
	writeJSON(w, http.StatusOK, map[string]any{"id": user.ID, "username": user.Username})
}

// Login exchanges valid credentials for a bearer token. Unknown usernames and
// wrong passwords get the same response.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	invalid := apperr.Unauthenticated("invalid credentials")

	user, err := h.store.GetUserByUsername(r.Context(), c.Username)
	if errors.Is(err, storage.ErrNotFound) {
		auth.CheckMissingUser(c.Password)
		writeError(w, r, invalid)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !auth.CheckPassword(c.Password, user.PasswordHash) {
		writeError(w, r, invalid)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "User logged in",
		log.FieldOperation, log.OpLogin,
		log.FieldUserID, user.ID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
