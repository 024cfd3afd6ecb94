package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/storage"
	"github.com/zevbilling/zevbilling/pkg/types"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list users", slog.Any("error", err))
		writeJSONError(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []types.User{}
	}
	writeJSON(w, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var user types.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeJSONError(w, "invalid user payload", http.StatusBadRequest)
		return
	}
	if user.Email == "" {
		writeJSONError(w, "email is required", http.StatusBadRequest)
		return
	}
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	if user.Role != types.RoleAdmin && user.Role != types.RoleUser {
		writeJSONError(w, "invalid role", http.StatusBadRequest)
		return
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()

	if err := s.storage.CreateUser(ctx, user); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		writeJSONError(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(user); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("userID")

	existing, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		writeJSONError(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	var user types.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeJSONError(w, "invalid user payload", http.StatusBadRequest)
		return
	}
	// identity and creation time are immutable
	user.ID = existing.ID
	user.CreatedAt = existing.CreatedAt
	if user.Role == "" {
		user.Role = existing.Role
	}

	if err := s.storage.UpdateUser(ctx, user); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to update user", slog.Any("error", err))
		writeJSONError(w, "failed to update user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("userID")

	if _, err := s.storage.GetUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		writeJSONError(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	if err := s.storage.DeleteUser(ctx, userID); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete user", slog.Any("error", err))
		writeJSONError(w, "failed to delete user", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
