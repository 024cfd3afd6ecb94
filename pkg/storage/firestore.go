package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Documents store their payload as a JSON string for portability:
// users/{id}, users/{id}/mappings/{id}, users/{id}/bills/{id} and the
// config/settings singleton.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// docJSON extracts and unmarshals the "json" field of a document into v.
func docJSON(doc *firestore.DocumentSnapshot, v any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to unmarshal document %s: %w", doc.Ref.ID, err)
	}
	return nil
}

func setJSON(ctx context.Context, doc *firestore.DocumentRef, v any, extra map[string]interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
	}
	data := map[string]interface{}{"json": string(jsonBytes)}
	for k, val := range extra {
		data[k] = val
	}
	if _, err := doc.Set(ctx, data); err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// GetSettings retrieves the installation configuration from the
// "config/settings" document. A missing document is a configuration gap, not
// an empty default.
func (f *FirestoreProvider) GetSettings(ctx context.Context) (types.SystemSettings, int, error) {
	doc, err := f.client.Collection("config").Doc("settings").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.SystemSettings{}, 0, ErrNotConfigured
		}
		return types.SystemSettings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	// Read version if available (default 0)
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	var s types.SystemSettings
	if err := docJSON(doc, &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "bad settings doc", slog.Any("err", err))
		return types.SystemSettings{}, 0, err
	}
	return s, version, nil
}

// SetSettings saves the installation configuration to the "config/settings"
// document.
func (f *FirestoreProvider) SetSettings(ctx context.Context, settings types.SystemSettings, version int) error {
	return setJSON(ctx, f.client.Collection("config").Doc("settings"), settings, map[string]interface{}{
		"version": version,
	})
}

func (f *FirestoreProvider) userDoc(userID string) (*firestore.DocumentRef, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID cannot be empty")
	}
	return f.client.Collection("users").Doc(userID), nil
}

// GetUser retrieves a user by ID.
func (f *FirestoreProvider) GetUser(ctx context.Context, userID string) (types.User, error) {
	ref, err := f.userDoc(userID)
	if err != nil {
		return types.User{}, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}
	var u types.User
	if err := docJSON(doc, &u); err != nil {
		return types.User{}, err
	}
	return u, nil
}

// ListUsers returns every user, ordered by creation time.
func (f *FirestoreProvider) ListUsers(ctx context.Context) ([]types.User, error) {
	iter := f.client.Collection("users").Documents(ctx)
	defer iter.Stop()

	var users []types.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating users: %w", err)
		}
		var u types.User
		if err := docJSON(doc, &u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// CreateUser stores a new user.
func (f *FirestoreProvider) CreateUser(ctx context.Context, user types.User) error {
	ref, err := f.userDoc(user.ID)
	if err != nil {
		return err
	}
	return setJSON(ctx, ref, user, nil)
}

// UpdateUser overwrites an existing user.
func (f *FirestoreProvider) UpdateUser(ctx context.Context, user types.User) error {
	ref, err := f.userDoc(user.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to fetch user %s: %w", user.ID, err)
	}
	return setJSON(ctx, ref, user, nil)
}

// DeleteUser removes a user document. Mappings and bills under it are left
// for a background cleanup; Firestore does not cascade deletes.
func (f *FirestoreProvider) DeleteUser(ctx context.Context, userID string) error {
	ref, err := f.userDoc(userID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete user %s: %w", userID, err)
	}
	return nil
}

// ListMappings returns the user's sensor mappings ordered by label.
func (f *FirestoreProvider) ListMappings(ctx context.Context, userID string) ([]types.SensorMapping, error) {
	ref, err := f.userDoc(userID)
	if err != nil {
		return nil, err
	}
	iter := ref.Collection("mappings").Documents(ctx)
	defer iter.Stop()

	var mappings []types.SensorMapping
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating mappings: %w", err)
		}
		var m types.SensorMapping
		if err := docJSON(doc, &m); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].Label < mappings[j].Label })
	return mappings, nil
}

// CreateMapping stores a new sensor mapping under its user.
func (f *FirestoreProvider) CreateMapping(ctx context.Context, mapping types.SensorMapping) error {
	ref, err := f.userDoc(mapping.UserID)
	if err != nil {
		return err
	}
	if mapping.ID == "" {
		return fmt.Errorf("mapping ID cannot be empty")
	}
	return setJSON(ctx, ref.Collection("mappings").Doc(mapping.ID), mapping, nil)
}

// UpdateMapping overwrites an existing mapping.
func (f *FirestoreProvider) UpdateMapping(ctx context.Context, mapping types.SensorMapping) error {
	ref, err := f.userDoc(mapping.UserID)
	if err != nil {
		return err
	}
	doc := ref.Collection("mappings").Doc(mapping.ID)
	if _, err := doc.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrMappingNotFound
		}
		return fmt.Errorf("failed to fetch mapping %s: %w", mapping.ID, err)
	}
	return setJSON(ctx, doc, mapping, nil)
}

// DeleteMapping removes a mapping.
func (f *FirestoreProvider) DeleteMapping(ctx context.Context, userID, mappingID string) error {
	ref, err := f.userDoc(userID)
	if err != nil {
		return err
	}
	if _, err := ref.Collection("mappings").Doc(mappingID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete mapping %s: %w", mappingID, err)
	}
	return nil
}

// CreateBill stores a new bill under its user.
func (f *FirestoreProvider) CreateBill(ctx context.Context, bill types.Bill) error {
	ref, err := f.userDoc(bill.UserID)
	if err != nil {
		return err
	}
	if bill.ID == "" {
		return fmt.Errorf("bill ID cannot be empty")
	}
	return setJSON(ctx, ref.Collection("bills").Doc(bill.ID), bill, map[string]interface{}{
		"createdAt": bill.CreatedAt,
	})
}

// GetBill retrieves one bill.
func (f *FirestoreProvider) GetBill(ctx context.Context, userID, billID string) (types.Bill, error) {
	ref, err := f.userDoc(userID)
	if err != nil {
		return types.Bill{}, err
	}
	doc, err := ref.Collection("bills").Doc(billID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Bill{}, ErrBillNotFound
		}
		return types.Bill{}, fmt.Errorf("failed to fetch bill %s: %w", billID, err)
	}
	var b types.Bill
	if err := docJSON(doc, &b); err != nil {
		return types.Bill{}, err
	}
	return b, nil
}

// ListBills returns the user's bills, newest first.
func (f *FirestoreProvider) ListBills(ctx context.Context, userID string) ([]types.Bill, error) {
	ref, err := f.userDoc(userID)
	if err != nil {
		return nil, err
	}
	iter := ref.Collection("bills").OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var bills []types.Bill
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating bills: %w", err)
		}
		var b types.Bill
		if err := docJSON(doc, &b); err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, nil
}

// DeleteBill cancels a bill by removing it.
func (f *FirestoreProvider) DeleteBill(ctx context.Context, userID, billID string) error {
	ref, err := f.userDoc(userID)
	if err != nil {
		return err
	}
	if _, err := ref.Collection("bills").Doc(billID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete bill %s: %w", billID, err)
	}
	return nil
}
