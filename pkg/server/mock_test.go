package server

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zevbilling/zevbilling/pkg/types"
)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetSettings(ctx context.Context) (types.SystemSettings, int, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.SystemSettings), args.Int(1), args.Error(2)
	}
	return types.SystemSettings{}, 0, nil
}

func (m *mockStorage) SetSettings(ctx context.Context, settings types.SystemSettings, version int) error {
	args := m.Called(ctx, settings, version)
	return args.Error(0)
}

func (m *mockStorage) GetUser(ctx context.Context, userID string) (types.User, error) {
	args := m.Called(ctx, userID)
	if len(args) > 0 {
		return args.Get(0).(types.User), args.Error(1)
	}
	return types.User{}, nil
}

func (m *mockStorage) ListUsers(ctx context.Context) ([]types.User, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.User), args.Error(1)
	}
	return nil, nil
}

func (m *mockStorage) CreateUser(ctx context.Context, user types.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockStorage) UpdateUser(ctx context.Context, user types.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockStorage) DeleteUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockStorage) ListMappings(ctx context.Context, userID string) ([]types.SensorMapping, error) {
	args := m.Called(ctx, userID)
	if len(args) > 0 {
		return args.Get(0).([]types.SensorMapping), args.Error(1)
	}
	return nil, nil
}

func (m *mockStorage) CreateMapping(ctx context.Context, mapping types.SensorMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *mockStorage) UpdateMapping(ctx context.Context, mapping types.SensorMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *mockStorage) DeleteMapping(ctx context.Context, userID, mappingID string) error {
	args := m.Called(ctx, userID, mappingID)
	return args.Error(0)
}

func (m *mockStorage) CreateBill(ctx context.Context, bill types.Bill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *mockStorage) GetBill(ctx context.Context, userID, billID string) (types.Bill, error) {
	args := m.Called(ctx, userID, billID)
	if len(args) > 0 {
		return args.Get(0).(types.Bill), args.Error(1)
	}
	return types.Bill{}, nil
}

func (m *mockStorage) ListBills(ctx context.Context, userID string) ([]types.Bill, error) {
	args := m.Called(ctx, userID)
	if len(args) > 0 {
		return args.Get(0).([]types.Bill), args.Error(1)
	}
	return nil, nil
}

func (m *mockStorage) DeleteBill(ctx context.Context, userID, billID string) error {
	args := m.Called(ctx, userID, billID)
	return args.Error(0)
}

func (m *mockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}
