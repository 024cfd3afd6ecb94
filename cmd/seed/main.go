package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/storage"
	"github.com/zevbilling/zevbilling/pkg/types"
)

// Seeds a fresh installation: system settings, an admin, and a demo tenant
// with a standalone apartment meter plus a virtual heat pump group. Intended
// to run against the emulator during development.
func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list users", slog.Any("error", err))
		os.Exit(1)
	}
	if len(users) > 0 {
		log.Ctx(ctx).InfoContext(ctx, "database not empty, skipping seed", slog.Int("users", len(users)))
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding demo data")

	settings := types.SystemSettings{
		PVPowerSensorID:       "sensor.pv_total_power",
		GridImportSensorID:    "sensor.grid_import_power",
		GridExportKWHSensorID: "sensor.grid_export_total",
		BatteryPowerSensorID:  "sensor.battery_power",
		BatteryLevelSensorID:  "sensor.battery_soc",
		InternalPrice:         0.15,
		GridFallbackPrice:     0.30,
		GridExportPrice:       0.08,
		GlobalGridBufferWatts: 200,
	}
	if err := s.SetSettings(ctx, settings, types.CurrentSettingsVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save settings", slog.Any("error", err))
		os.Exit(1)
	}

	admin := types.User{
		ID:        uuid.NewString(),
		Email:     "admin@example.com",
		Role:      types.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateUser(ctx, admin); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create admin", slog.Any("error", err))
		os.Exit(1)
	}

	tenant := types.User{
		ID:              uuid.NewString(),
		Email:           "tenant@example.com",
		Role:            types.RoleUser,
		EnablePVBilling: true,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.CreateUser(ctx, tenant); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create tenant", slog.Any("error", err))
		os.Exit(1)
	}

	groupID := uuid.NewString()
	mappings := []types.SensorMapping{
		{
			ID:            uuid.NewString(),
			UserID:        tenant.ID,
			Label:         "Apartment 1",
			UsageSensorID: "sensor.apt1_energy_total",
			PowerSensorID: "sensor.apt1_power",
			PriceSensorID: "sensor.grid_price",
			Factor:        1,
		},
		{
			ID:             uuid.NewString(),
			UserID:         tenant.ID,
			Label:          "Heat Pumps",
			IsVirtual:      true,
			VirtualGroupID: groupID,
		},
		{
			ID:             uuid.NewString(),
			UserID:         tenant.ID,
			Label:          "Heat Pumps - North",
			UsageSensorID:  "sensor.hp_north_energy_total",
			PriceSensorID:  "sensor.grid_price",
			Factor:         1,
			IsVirtual:      true,
			VirtualGroupID: groupID,
		},
		{
			ID:             uuid.NewString(),
			UserID:         tenant.ID,
			Label:          "Heat Pumps - South",
			UsageSensorID:  "sensor.hp_south_energy_total",
			PriceSensorID:  "sensor.grid_price",
			Factor:         1,
			IsVirtual:      true,
			VirtualGroupID: groupID,
		},
	}
	for _, m := range mappings {
		if err := s.CreateMapping(ctx, m); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to create mapping", slog.String("label", m.Label), slog.Any("error", err))
			os.Exit(1)
		}
	}

	if err := s.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
	}
	log.Ctx(ctx).InfoContext(ctx, "seed complete",
		slog.String("admin", admin.Email),
		slog.String("tenant", tenant.Email),
		slog.Int("mappings", len(mappings)))
}
