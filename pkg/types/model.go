package types

import "time"

// CurrentBillSnapshotVersion is the schema version written into new bill
// snapshots. Increment when BillLineItem changes shape so old bills can still
// be rendered.
const CurrentBillSnapshotVersion = 1

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents a billed member of the shared installation, along with the
// per-user pricing policy the admin configured for them.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`

	// EnablePVBilling opts the user into internal/external attribution. When
	// false every interval is billed at the grid price.
	EnablePVBilling bool `json:"enablePVBilling"`
	// CustomInternalRate overrides the installation-wide internal price.
	CustomInternalRate *float64 `json:"customInternalRate,omitempty"`
	// CustomGridBufferWatts overrides the installation-wide grid buffer.
	CustomGridBufferWatts *float64 `json:"customGridBufferWatts,omitempty"`
	// AllowBatteryPricing lets battery discharge count as an internal source.
	AllowBatteryPricing bool `json:"allowBatteryPricing"`

	CreatedAt time.Time `json:"createdAt"`
}

// Admin returns true if the user has the admin role.
func (u User) Admin() bool {
	return u.Role == RoleAdmin
}

// SensorMapping is one line-item a user is billed for: a usage counter plus
// the price series and weighting used to turn it into money.
type SensorMapping struct {
	ID     string `json:"id"`
	UserID string `json:"userID"`
	Label  string `json:"label"`

	// UsageSensorID is a monotonically increasing energy counter (kWh).
	UsageSensorID string `json:"usageSensorID"`
	// PowerSensorID is an optional instantaneous power series used for live
	// estimates.
	PowerSensorID string `json:"powerSensorID,omitempty"`
	PriceSensorID string `json:"priceSensorID"`

	// Factor scales the counter delta. It may be negative so virtual meters
	// can subtract a component (e.g. shared circuits split across tenants).
	Factor float64 `json:"factor"`

	IsVirtual      bool   `json:"isVirtual"`
	VirtualGroupID string `json:"virtualGroupID,omitempty"`
}

// ContainerOnly returns true for purely organizational virtual mappings that
// have no sensor behind them. Those are skipped by every calculation.
func (m SensorMapping) ContainerOnly() bool {
	return m.IsVirtual && m.UsageSensorID == ""
}

// LineItemKind tags a bill snapshot line as a standalone mapping or a folded
// virtual group.
type LineItemKind string

const (
	LineItemStandalone   LineItemKind = "standalone"
	LineItemVirtualGroup LineItemKind = "virtualGroup"
)

// BillLineItem is one line of the persisted billing breakdown. The snapshot
// is stored alongside the bill so it can be rendered later without touching
// telemetry again.
type BillLineItem struct {
	Kind  LineItemKind `json:"kind"`
	Label string       `json:"label"`

	// SensorID and Factor are only set for standalone lines.
	SensorID string  `json:"sensorID,omitempty"`
	Factor   float64 `json:"factor,omitempty"`
	// ComponentCount is only set for virtual-group lines.
	ComponentCount int `json:"componentCount,omitempty"`

	UsageKWH float64 `json:"usageKWH"`
	Cost     float64 `json:"cost"`

	UsageInternalKWH float64 `json:"usageInternalKWH"`
	UsageExternalKWH float64 `json:"usageExternalKWH"`
	CostInternal     float64 `json:"costInternal"`
	CostExternal     float64 `json:"costExternal"`
}

// Bill is the persisted output of a billing run. Bills are immutable once
// created; cancellation deletes them.
type Bill struct {
	ID     string `json:"id"`
	UserID string `json:"userID"`

	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`

	TotalUsageKWH float64 `json:"totalUsageKWH"`
	TotalCost     float64 `json:"totalCost"`
	// Profit is the markup captured by billing internally sourced energy:
	// total cost minus what the external share alone cost.
	Profit float64 `json:"profit"`

	SnapshotVersion int            `json:"snapshotVersion"`
	Snapshot        []BillLineItem `json:"snapshot"`

	CreatedAt time.Time `json:"createdAt"`
}
