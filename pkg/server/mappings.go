package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/storage"
	"github.com/zevbilling/zevbilling/pkg/types"
)

func validateMapping(m types.SensorMapping) string {
	if m.Label == "" {
		return "label is required"
	}
	if m.UsageSensorID == "" && !m.IsVirtual {
		return "usageSensorID is required for non-virtual mappings"
	}
	if m.Factor == 0 && !m.ContainerOnly() {
		return "factor cannot be zero"
	}
	return ""
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("userID")

	mappings, err := s.storage.ListMappings(ctx, userID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list mappings", slog.Any("error", err))
		writeJSONError(w, "failed to list mappings", http.StatusInternalServerError)
		return
	}
	if mappings == nil {
		mappings = []types.SensorMapping{}
	}
	writeJSON(w, mappings)
}

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
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

	var mapping types.SensorMapping
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		writeJSONError(w, "invalid mapping payload", http.StatusBadRequest)
		return
	}
	if msg := validateMapping(mapping); msg != "" {
		writeJSONError(w, msg, http.StatusBadRequest)
		return
	}
	mapping.ID = uuid.NewString()
	mapping.UserID = userID

	if err := s.storage.CreateMapping(ctx, mapping); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create mapping", slog.Any("error", err))
		writeJSONError(w, "failed to create mapping", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(mapping); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("userID")
	mappingID := r.PathValue("mappingID")

	var mapping types.SensorMapping
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		writeJSONError(w, "invalid mapping payload", http.StatusBadRequest)
		return
	}
	if msg := validateMapping(mapping); msg != "" {
		writeJSONError(w, msg, http.StatusBadRequest)
		return
	}
	mapping.ID = mappingID
	mapping.UserID = userID

	if err := s.storage.UpdateMapping(ctx, mapping); err != nil {
		if errors.Is(err, storage.ErrMappingNotFound) {
			writeJSONError(w, "mapping not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to update mapping", slog.Any("error", err))
		writeJSONError(w, "failed to update mapping", http.StatusInternalServerError)
		return
	}
	writeJSON(w, mapping)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("userID")
	mappingID := r.PathValue("mappingID")

	if err := s.storage.DeleteMapping(ctx, userID, mappingID); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete mapping", slog.Any("error", err))
		writeJSONError(w, "failed to delete mapping", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
