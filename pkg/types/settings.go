package types

import "fmt"

// CurrentSettingsVersion is the current version of the system settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

// DisabledGridBufferWatts is the sentinel buffer used when PV billing is off
// for a user. Grid import can never be below it, so every interval classifies
// external.
const DisabledGridBufferWatts = -999999

// SystemSettings is the per-installation configuration: which sensors describe
// the shared system (PV, grid, battery) and the default prices.
type SystemSettings struct {
	// PVPowerSensorID reports instantaneous PV production.
	PVPowerSensorID string `json:"pvPowerSensorID"`

	// Either a dedicated import (and optionally export) power sensor, or a
	// single bidirectional sensor whose sign encodes direction
	// (positive = import, negative = export).
	GridImportSensorID string `json:"gridImportSensorID"`
	GridExportSensorID string `json:"gridExportSensorID"`
	GridPowerSensorID  string `json:"gridPowerSensorID"`

	// GridExportKWHSensorID is a dedicated monotonic export counter. Export
	// revenue is only calculated when this is configured.
	GridExportKWHSensorID string `json:"gridExportKWHSensorID"`

	BatteryPowerSensorID string `json:"batteryPowerSensorID"`
	BatteryLevelSensorID string `json:"batteryLevelSensorID"`
	// InvertBatterySign flips the battery sensor so that positive always
	// means discharging.
	InvertBatterySign bool `json:"invertBatterySign"`

	// InternalPrice is the default rate for internally sourced energy.
	InternalPrice float64 `json:"internalPrice"`
	// GridFallbackPrice is applied when the dynamic grid price is missing.
	GridFallbackPrice float64 `json:"gridFallbackPrice"`
	// GridExportPrice is the feed-in rate paid per exported kWh.
	GridExportPrice float64 `json:"gridExportPrice"`

	// GlobalGridBufferWatts is the residual grid draw still treated as
	// internal, absorbing control-loop imprecision.
	GlobalGridBufferWatts float64 `json:"globalGridBufferWatts"`
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made,
// and an error if migration failed.
func MigrateSettings(s SystemSettings, currentVersion int) (SystemSettings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial prices
			if s.InternalPrice == 0 {
				s.InternalPrice = 0.15
				migrated = true
			}
			if s.GridFallbackPrice == 0 {
				s.GridFallbackPrice = 0.30
				migrated = true
			}
		case 2:
			// version 2: add the global grid buffer
			if s.GlobalGridBufferWatts == 0 {
				s.GlobalGridBufferWatts = 200
				migrated = true
			}
		case 3:
			// version 3: add export counter and feed-in price
			// no defaults: export revenue stays off until configured
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}

// PricingRules is the per-user pricing policy derived from the system settings
// and the user's overrides for one calculation.
type PricingRules struct {
	InternalPrice     float64 `json:"internalPrice"`
	GridFallbackPrice float64 `json:"gridFallbackPrice"`
	// GridBufferWatts is DisabledGridBufferWatts when PV billing is off for
	// the user, which forces every interval to classify external.
	GridBufferWatts     float64 `json:"gridBufferWatts"`
	AllowBatteryPricing bool    `json:"allowBatteryPricing"`
}

// PricingRulesFor derives the effective pricing rules for a user.
func PricingRulesFor(u User, s SystemSettings) PricingRules {
	fallback := s.GridFallbackPrice
	if fallback == 0 {
		fallback = 0.30
	}

	if !u.EnablePVBilling {
		return PricingRules{
			GridFallbackPrice: fallback,
			GridBufferWatts:   DisabledGridBufferWatts,
		}
	}

	internal := s.InternalPrice
	if u.CustomInternalRate != nil {
		internal = *u.CustomInternalRate
	}

	buffer := s.GlobalGridBufferWatts
	if buffer == 0 {
		buffer = 200
	}
	if u.CustomGridBufferWatts != nil {
		buffer = *u.CustomGridBufferWatts
	}

	return PricingRules{
		InternalPrice:       internal,
		GridFallbackPrice:   fallback,
		GridBufferWatts:     buffer,
		AllowBatteryPricing: u.AllowBatteryPricing,
	}
}
