package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zevbilling/zevbilling/pkg/types"
)

func TestFirestoreProvider(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set, skipping firestore tests")
	}

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: "test-project-id",
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("SettingsMissing", func(t *testing.T) {
		_, _, err := f.GetSettings(ctx)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("Settings", func(t *testing.T) {
		settings := types.SystemSettings{
			PVPowerSensorID:       "sensor.pv_power",
			InternalPrice:         0.15,
			GridFallbackPrice:     0.30,
			GlobalGridBufferWatts: 200,
			InvertBatterySign:     true,
		}
		require.NoError(t, f.SetSettings(ctx, settings, types.CurrentSettingsVersion))

		got, version, err := f.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.CurrentSettingsVersion, version)
		assert.Equal(t, settings, got)
	})

	t.Run("Users", func(t *testing.T) {
		u := types.User{
			ID:              "user-1",
			Email:           "tenant@example.com",
			Role:            types.RoleUser,
			EnablePVBilling: true,
			CreatedAt:       time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, f.CreateUser(ctx, u))

		got, err := f.GetUser(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)
		assert.True(t, got.EnablePVBilling)

		_, err = f.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)

		users, err := f.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)

		u.AllowBatteryPricing = true
		require.NoError(t, f.UpdateUser(ctx, u))
		got, err = f.GetUser(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, got.AllowBatteryPricing)
	})

	t.Run("Mappings", func(t *testing.T) {
		m := types.SensorMapping{
			ID:            "map-1",
			UserID:        "user-1",
			Label:         "Apartment 1",
			UsageSensorID: "sensor.apt1_energy",
			PriceSensorID: "sensor.grid_price",
			Factor:        1,
		}
		require.NoError(t, f.CreateMapping(ctx, m))

		mappings, err := f.ListMappings(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, mappings, 1)
		assert.Equal(t, m, mappings[0])

		m.Factor = 0.5
		require.NoError(t, f.UpdateMapping(ctx, m))
		mappings, err = f.ListMappings(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 0.5, mappings[0].Factor)

		require.NoError(t, f.DeleteMapping(ctx, "user-1", "map-1"))
		mappings, err = f.ListMappings(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, mappings)
	})

	t.Run("Bills", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		b := types.Bill{
			ID:              "bill-1",
			UserID:          "user-1",
			StartDate:       now.AddDate(0, -1, 0),
			EndDate:         now,
			TotalUsageKWH:   120.5,
			TotalCost:       24.1,
			Profit:          6.3,
			SnapshotVersion: types.CurrentBillSnapshotVersion,
			Snapshot: []types.BillLineItem{
				{Kind: types.LineItemStandalone, Label: "Apartment 1", UsageKWH: 120.5, Cost: 24.1},
			},
			CreatedAt: now,
		}
		require.NoError(t, f.CreateBill(ctx, b))

		got, err := f.GetBill(ctx, "user-1", "bill-1")
		require.NoError(t, err)
		assert.Equal(t, b.TotalCost, got.TotalCost)
		require.Len(t, got.Snapshot, 1)
		assert.Equal(t, types.LineItemStandalone, got.Snapshot[0].Kind)

		bills, err := f.ListBills(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, bills, 1)

		require.NoError(t, f.DeleteBill(ctx, "user-1", "bill-1"))
		_, err = f.GetBill(ctx, "user-1", "bill-1")
		assert.ErrorIs(t, err, ErrBillNotFound)
	})
}
