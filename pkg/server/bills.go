package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zevbilling/zevbilling/pkg/billing"
	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/storage"
	"github.com/zevbilling/zevbilling/pkg/types"
)

type generateBillRequest struct {
	UserID string    `json:"userID"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// handleGenerateBill runs the billing engine over a user's mappings for a
// period and persists the resulting bill with its line-item snapshot.
func (s *Server) handleGenerateBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generateBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid bill request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		writeJSONError(w, "userID and a valid start/end range are required", http.StatusBadRequest)
		return
	}

	user, err := s.storage.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		writeJSONError(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	mappings, err := s.storage.ListMappings(ctx, req.UserID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list mappings", slog.Any("error", err))
		writeJSONError(w, "failed to list mappings", http.StatusInternalServerError)
		return
	}
	if len(mappings) == 0 {
		writeJSONError(w, "user has no sensor mappings", http.StatusBadRequest)
		return
	}

	sv, err := s.getSettingsWithMigration(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			writeJSONError(w, "system settings not configured", http.StatusConflict)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get settings", slog.Any("error", err))
		writeJSONError(w, "failed to get settings", http.StatusInternalServerError)
		return
	}

	rules := types.PricingRulesFor(user, sv.SystemSettings)

	// one reference price series for the whole calculation, taken from the
	// first mapping that names one
	system, err := s.engine.FetchSystemHistory(ctx, sv.SystemSettings, referencePriceSeries(mappings), req.Start, req.End, s.billingWindow)
	if err != nil {
		if errors.Is(err, billing.ErrNoPriceSeries) {
			writeJSONError(w, "no price series configured on any mapping", http.StatusConflict)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch system telemetry", slog.Any("error", err))
		writeJSONError(w, "failed to fetch system telemetry", http.StatusBadGateway)
		return
	}

	results := s.engine.Calculate(ctx, mappings, req.Start, req.End, s.billingWindow, system, rules)
	totals, lines := billing.Aggregate(results)

	bill := types.Bill{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		StartDate:       req.Start,
		EndDate:         req.End,
		TotalUsageKWH:   roundMoney(totals.UsageKWH, 3),
		TotalCost:       roundMoney(totals.Cost, 2),
		Profit:          roundMoney(totals.Profit, 2),
		SnapshotVersion: types.CurrentBillSnapshotVersion,
		Snapshot:        lines,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.storage.CreateBill(ctx, bill); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save bill", slog.Any("error", err))
		writeJSONError(w, "failed to save bill", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "generated bill",
		slog.String("billID", bill.ID),
		slog.String("userID", bill.UserID),
		slog.Float64("totalCost", bill.TotalCost))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(bill); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userID")
	if userID == "" {
		writeJSONError(w, "userID query parameter is required", http.StatusBadRequest)
		return
	}
	s.writeBillList(w, r, userID)
}

// handleOwnBills lists the caller's own bills.
func (s *Server) handleOwnBills(w http.ResponseWriter, r *http.Request) {
	s.writeBillList(w, r, s.getPrincipal(r).UserID)
}

func (s *Server) writeBillList(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	bills, err := s.storage.ListBills(ctx, userID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list bills", slog.String("userID", userID), slog.Any("error", err))
		writeJSONError(w, "failed to list bills", http.StatusInternalServerError)
		return
	}
	if bills == nil {
		bills = []types.Bill{}
	}
	writeJSON(w, bills)
}

// handleDeleteBill cancels a bill. Bills are immutable so cancellation is the
// only mutation.
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("userID")
	billID := r.PathValue("billID")

	if _, err := s.storage.GetBill(ctx, userID, billID); err != nil {
		if errors.Is(err, storage.ErrBillNotFound) {
			writeJSONError(w, "bill not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get bill", slog.Any("error", err))
		writeJSONError(w, "failed to get bill", http.StatusInternalServerError)
		return
	}

	if err := s.storage.DeleteBill(ctx, userID, billID); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete bill", slog.Any("error", err))
		writeJSONError(w, "failed to delete bill", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func referencePriceSeries(mappings []types.SensorMapping) string {
	for _, m := range mappings {
		if m.PriceSensorID != "" {
			return m.PriceSensorID
		}
	}
	return ""
}

// roundMoney rounds half-up to the given number of places for persisted bill
// figures. The engine itself stays in float64.
func roundMoney(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
