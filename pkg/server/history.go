package server

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/types"
)

type monthlyHistory struct {
	Month    string  `json:"month"` // YYYY-MM
	UsageKWH float64 `json:"usageKWH"`
	Cost     float64 `json:"cost"`
}

type billSummary struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	TotalCost float64   `json:"totalCost"`
}

type historyResponse struct {
	Months     []monthlyHistory `json:"months"`
	LatestBill *billSummary     `json:"latestBill,omitempty"`
}

// handleHistory returns the caller's last 12 months of usage, bucketed per
// day by the engine and folded into monthly lines, plus a summary of their
// newest bill. Monthly costs here use each mapping's own price series without
// internal attribution, so they are indicative rather than invoice-exact.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := s.getPrincipal(r).UserID

	mappings, err := s.storage.ListMappings(ctx, userID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list mappings", slog.Any("error", err))
		writeJSONError(w, "failed to list mappings", http.StatusInternalServerError)
		return
	}

	var fallbackPrice float64
	if sv, err := s.getSettingsWithMigration(ctx); err == nil {
		fallbackPrice = sv.GridFallbackPrice
	}

	now := time.Now().UTC()
	end := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	start := end.AddDate(-1, 0, 0)

	months := map[string]*monthlyHistory{}
	for _, m := range mappings {
		if m.ContainerOnly() {
			continue
		}
		points, err := s.engine.History(ctx, m, start, end, 24*time.Hour, fallbackPrice)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "history fetch failed",
				slog.String("label", m.Label), slog.Any("error", err))
			continue
		}
		for _, p := range points {
			key := p.Time.Format("2006-01")
			mh, ok := months[key]
			if !ok {
				mh = &monthlyHistory{Month: key}
				months[key] = mh
			}
			mh.UsageKWH += p.UsageKWH
			mh.Cost += p.UsageKWH * p.Price
		}
	}

	resp := historyResponse{Months: make([]monthlyHistory, 0, len(months))}
	for _, mh := range months {
		resp.Months = append(resp.Months, *mh)
	}
	sort.Slice(resp.Months, func(i, j int) bool { return resp.Months[i].Month < resp.Months[j].Month })

	bills, err := s.storage.ListBills(ctx, userID)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to list bills for history", slog.Any("error", err))
	} else if len(bills) > 0 {
		latest := newestBill(bills)
		resp.LatestBill = &billSummary{
			ID:        latest.ID,
			StartDate: latest.StartDate,
			EndDate:   latest.EndDate,
			TotalCost: latest.TotalCost,
		}
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	writeJSON(w, resp)
}

func newestBill(bills []types.Bill) types.Bill {
	latest := bills[0]
	for _, b := range bills[1:] {
		if b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	return latest
}
