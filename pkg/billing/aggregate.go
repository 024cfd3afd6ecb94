package billing

import (
	"strings"

	"github.com/zevbilling/zevbilling/pkg/types"
)

// Totals is the period aggregate over all of a user's mappings.
type Totals struct {
	UsageKWH float64 `json:"usageKWH"`
	Cost     float64 `json:"cost"`

	UsageInternalKWH float64 `json:"usageInternalKWH"`
	UsageExternalKWH float64 `json:"usageExternalKWH"`
	CostInternal     float64 `json:"costInternal"`
	CostExternal     float64 `json:"costExternal"`

	// Profit is total cost minus the external-only cost: the markup captured
	// by billing internally sourced energy above zero.
	Profit float64 `json:"profit"`
}

// Aggregate folds per-mapping results into period totals and a snapshot of
// line items. Mappings sharing a virtual group become one combined line with
// summed usage and cost; their display label is the shared prefix of the
// member labels (members are labeled "<group> - <component>"). Line order
// follows the input, with each group appearing where its first member did.
func Aggregate(results []MappingResult) (Totals, []types.BillLineItem) {
	var t Totals
	var lines []types.BillLineItem
	groupIdx := map[string]int{}

	for _, r := range results {
		t.UsageKWH += r.UsageKWH
		t.Cost += r.Cost
		t.UsageInternalKWH += r.UsageInternalKWH
		t.UsageExternalKWH += r.UsageExternalKWH
		t.CostInternal += r.CostInternal
		t.CostExternal += r.CostExternal

		m := r.Mapping
		if m.VirtualGroupID != "" {
			idx, ok := groupIdx[m.VirtualGroupID]
			if !ok {
				lines = append(lines, types.BillLineItem{
					Kind:  types.LineItemVirtualGroup,
					Label: groupLabel(m.Label),
				})
				idx = len(lines) - 1
				groupIdx[m.VirtualGroupID] = idx
			}
			g := &lines[idx]
			g.ComponentCount++
			g.UsageKWH += r.UsageKWH
			g.Cost += r.Cost
			g.UsageInternalKWH += r.UsageInternalKWH
			g.UsageExternalKWH += r.UsageExternalKWH
			g.CostInternal += r.CostInternal
			g.CostExternal += r.CostExternal
			continue
		}

		lines = append(lines, types.BillLineItem{
			Kind:             types.LineItemStandalone,
			Label:            m.Label,
			SensorID:         m.UsageSensorID,
			Factor:           m.Factor,
			UsageKWH:         r.UsageKWH,
			Cost:             r.Cost,
			UsageInternalKWH: r.UsageInternalKWH,
			UsageExternalKWH: r.UsageExternalKWH,
			CostInternal:     r.CostInternal,
			CostExternal:     r.CostExternal,
		})
	}

	t.Profit = t.Cost - t.CostExternal
	return t, lines
}

// groupLabel strips the trailing " - <component>" part from a virtual group
// member's label.
func groupLabel(label string) string {
	if i := strings.LastIndex(label, " - "); i >= 0 {
		return label[:i]
	}
	return label
}
