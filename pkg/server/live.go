package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/zevbilling/zevbilling/pkg/billing"
	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/storage"
	"github.com/zevbilling/zevbilling/pkg/types"
)

// defaultLivePrice keeps the live view sensible when neither the price sensor
// nor the fallback is configured yet.
const defaultLivePrice = 0.28

type liveStatsResponse struct {
	Estimates []billing.LiveEstimate `json:"estimates"`

	TotalUsageKW     float64 `json:"totalUsageKW"`
	TotalCostPerHour float64 `json:"totalCostPerHour"`
	AveragePrice     float64 `json:"averagePrice"`
}

// handleLiveStats returns near-real-time consumption and cost for the
// caller's mappings, with virtual groups folded like on a bill.
func (s *Server) handleLiveStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := s.getPrincipal(r).UserID

	user, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		writeJSONError(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	mappings, err := s.storage.ListMappings(ctx, userID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list mappings", slog.Any("error", err))
		writeJSONError(w, "failed to list mappings", http.StatusInternalServerError)
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

	// estimate every mapping concurrently; one failing sensor degrades to a
	// zero line instead of breaking the whole view
	ests := make([]billing.MappingEstimate, 0, len(mappings))
	ordered := make([]*billing.MappingEstimate, len(mappings))
	var wg sync.WaitGroup
	for i, m := range mappings {
		if m.ContainerOnly() {
			continue
		}
		wg.Add(1)
		go func(i int, m types.SensorMapping) {
			defer wg.Done()
			est, err := s.engine.LiveEstimate(ctx, m, sv.SystemSettings, rules)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "live estimate failed",
					slog.String("label", m.Label), slog.Any("error", err))
				est = billing.MappingEstimate{
					Mapping:      m,
					LiveEstimate: billing.LiveEstimate{Label: m.Label, IsVirtual: m.IsVirtual},
				}
			}
			ordered[i] = &est
		}(i, m)
	}
	wg.Wait()
	for _, est := range ordered {
		if est != nil {
			ests = append(ests, *est)
		}
	}

	resp := liveStatsResponse{Estimates: billing.FoldEstimates(ests)}
	if resp.Estimates == nil {
		resp.Estimates = []billing.LiveEstimate{}
	}

	var priceSum float64
	var priced int
	for _, est := range resp.Estimates {
		resp.TotalUsageKW += est.UsageKW
		resp.TotalCostPerHour += est.CostPerHour
		if est.CurrentPrice > 0 {
			priceSum += est.CurrentPrice
			priced++
		}
	}
	if priced > 0 {
		resp.AveragePrice = priceSum / float64(priced)
	} else {
		resp.AveragePrice = defaultLivePrice
	}

	w.Header().Set("Cache-Control", "private, max-age=15")
	writeJSON(w, resp)
}
