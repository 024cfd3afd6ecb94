package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/zevbilling/zevbilling/pkg/types"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrMappingNotFound = errors.New("mapping not found")
	ErrBillNotFound    = errors.New("bill not found")
	// ErrNotConfigured is returned when the installation's system settings
	// were never written. Calculations that need them must surface this to
	// the caller instead of assuming defaults.
	ErrNotConfigured = errors.New("system settings not configured")
)

// Database defines the interface for persisting users, sensor mappings,
// system settings and bills.
type Database interface {
	// Settings (singleton per installation)
	GetSettings(ctx context.Context) (types.SystemSettings, int, error)
	SetSettings(ctx context.Context, settings types.SystemSettings, version int) error

	// Users
	GetUser(ctx context.Context, userID string) (types.User, error)
	ListUsers(ctx context.Context) ([]types.User, error)
	CreateUser(ctx context.Context, user types.User) error
	UpdateUser(ctx context.Context, user types.User) error
	DeleteUser(ctx context.Context, userID string) error

	// Sensor mappings
	ListMappings(ctx context.Context, userID string) ([]types.SensorMapping, error)
	CreateMapping(ctx context.Context, mapping types.SensorMapping) error
	UpdateMapping(ctx context.Context, mapping types.SensorMapping) error
	DeleteMapping(ctx context.Context, userID, mappingID string) error

	// Bills (immutable once created; deletion cancels)
	CreateBill(ctx context.Context, bill types.Bill) error
	GetBill(ctx context.Context, userID, billID string) (types.Bill, error)
	ListBills(ctx context.Context, userID string) ([]types.Bill, error)
	DeleteBill(ctx context.Context, userID, billID string) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Database = fs
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
