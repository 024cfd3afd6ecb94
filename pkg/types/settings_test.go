package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("FromZero", func(t *testing.T) {
		s, migrated, err := MigrateSettings(SystemSettings{}, 0)
		require.NoError(t, err)
		assert.True(t, migrated)
		assert.Equal(t, 0.15, s.InternalPrice)
		assert.Equal(t, 0.30, s.GridFallbackPrice)
		assert.Equal(t, 200.0, s.GlobalGridBufferWatts)
	})

	t.Run("AlreadyCurrent", func(t *testing.T) {
		in := SystemSettings{InternalPrice: 0.12}
		s, migrated, err := MigrateSettings(in, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, migrated)
		assert.Equal(t, in, s)
	})

	t.Run("KeepsExistingValues", func(t *testing.T) {
		in := SystemSettings{InternalPrice: 0.18, GridFallbackPrice: 0.42, GlobalGridBufferWatts: 350}
		s, migrated, err := MigrateSettings(in, 0)
		require.NoError(t, err)
		// nothing to fill in, but the version walk still happened
		assert.False(t, migrated)
		assert.Equal(t, 0.18, s.InternalPrice)
		assert.Equal(t, 0.42, s.GridFallbackPrice)
		assert.Equal(t, 350.0, s.GlobalGridBufferWatts)
	})
}

func TestPricingRulesFor(t *testing.T) {
	settings := SystemSettings{
		InternalPrice:         0.15,
		GridFallbackPrice:     0.30,
		GlobalGridBufferWatts: 200,
	}

	t.Run("PVBillingDisabled", func(t *testing.T) {
		rules := PricingRulesFor(User{EnablePVBilling: false, AllowBatteryPricing: true}, settings)
		assert.Equal(t, float64(DisabledGridBufferWatts), rules.GridBufferWatts)
		assert.Equal(t, 0.0, rules.InternalPrice)
		assert.False(t, rules.AllowBatteryPricing)
		assert.Equal(t, 0.30, rules.GridFallbackPrice)
	})

	t.Run("Defaults", func(t *testing.T) {
		rules := PricingRulesFor(User{EnablePVBilling: true}, settings)
		assert.Equal(t, 0.15, rules.InternalPrice)
		assert.Equal(t, 200.0, rules.GridBufferWatts)
		assert.False(t, rules.AllowBatteryPricing)
	})

	t.Run("CustomOverrides", func(t *testing.T) {
		rate := 0.11
		buffer := 500.0
		rules := PricingRulesFor(User{
			EnablePVBilling:       true,
			CustomInternalRate:    &rate,
			CustomGridBufferWatts: &buffer,
			AllowBatteryPricing:   true,
		}, settings)
		assert.Equal(t, 0.11, rules.InternalPrice)
		assert.Equal(t, 500.0, rules.GridBufferWatts)
		assert.True(t, rules.AllowBatteryPricing)
	})

	t.Run("MissingSettingsDefaults", func(t *testing.T) {
		rules := PricingRulesFor(User{EnablePVBilling: true}, SystemSettings{})
		assert.Equal(t, 0.30, rules.GridFallbackPrice)
		assert.Equal(t, 200.0, rules.GridBufferWatts)
	})
}
