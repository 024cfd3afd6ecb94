package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zevbilling/zevbilling/pkg/billing"
	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/storage"
	"github.com/zevbilling/zevbilling/pkg/types"
)

type userProfit struct {
	UserID           string  `json:"userID"`
	Email            string  `json:"email"`
	UsageKWH         float64 `json:"usageKWH"`
	UsageInternalKWH float64 `json:"usageInternalKWH"`
	CostInternal     float64 `json:"costInternal"`
	Cost             float64 `json:"cost"`
	Profit           float64 `json:"profit"`
}

type profitResponse struct {
	Users []userProfit `json:"users"`

	TotalProfit   float64 `json:"totalProfit"`
	ExportKWH     float64 `json:"exportKWH"`
	ExportRevenue float64 `json:"exportRevenue"`
	TotalRevenue  float64 `json:"totalRevenue"`
}

// handleProfit reports what the installation earned over a range: the
// internal-billing markup per user plus feed-in revenue from grid export.
func (s *Server) handleProfit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("invalid time range: %v", err), http.StatusBadRequest)
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

	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list users", slog.Any("error", err))
		writeJSONError(w, "failed to list users", http.StatusInternalServerError)
		return
	}

	resp := profitResponse{Users: []userProfit{}}
	var system []billing.SystemIntervalData

	for _, u := range users {
		mappings, err := s.storage.ListMappings(ctx, u.ID)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to list mappings", slog.String("userID", u.ID), slog.Any("error", err))
			writeJSONError(w, "failed to list mappings", http.StatusInternalServerError)
			return
		}
		if len(mappings) == 0 {
			continue
		}

		// the shared system history is identical for every user; fetch once
		if system == nil {
			system, err = s.engine.FetchSystemHistory(ctx, sv.SystemSettings, referencePriceSeries(mappings), start, end, s.billingWindow)
			if err != nil {
				if errors.Is(err, billing.ErrNoPriceSeries) {
					writeJSONError(w, "no price series configured on any mapping", http.StatusConflict)
					return
				}
				log.Ctx(ctx).ErrorContext(ctx, "failed to fetch system telemetry", slog.Any("error", err))
				writeJSONError(w, "failed to fetch system telemetry", http.StatusBadGateway)
				return
			}
		}

		rules := types.PricingRulesFor(u, sv.SystemSettings)
		results := s.engine.Calculate(ctx, mappings, start, end, s.billingWindow, system, rules)
		totals, _ := billing.Aggregate(results)

		resp.Users = append(resp.Users, userProfit{
			UserID:           u.ID,
			Email:            u.Email,
			UsageKWH:         totals.UsageKWH,
			UsageInternalKWH: totals.UsageInternalKWH,
			CostInternal:     totals.CostInternal,
			Cost:             totals.Cost,
			Profit:           totals.Profit,
		})
		resp.TotalProfit += totals.Profit
	}

	export, err := s.engine.ExportRevenue(ctx, sv.SystemSettings, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to calculate export revenue", slog.Any("error", err))
		writeJSONError(w, "failed to calculate export revenue", http.StatusBadGateway)
		return
	}
	resp.ExportKWH = export.ExportKWH
	resp.ExportRevenue = export.Revenue
	resp.TotalRevenue = resp.TotalProfit + export.Revenue

	rangeCacheHeaders(w, end)
	writeJSON(w, resp)
}
