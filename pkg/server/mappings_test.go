package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zevbilling/zevbilling/pkg/storage"
	"github.com/zevbilling/zevbilling/pkg/types"
)

func TestMappingsCRUD(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		ms := &mockStorage{}
		ms.On("GetUser", mock.Anything, "user-1").Return(types.User{ID: "user-1"}, nil)
		var saved types.SensorMapping
		ms.On("CreateMapping", mock.Anything, mock.AnythingOfType("types.SensorMapping")).Run(func(args mock.Arguments) {
			saved = args.Get(1).(types.SensorMapping)
		}).Return(nil)

		_, h := newTestServer(ms, nil)
		w := doRequest(h, http.MethodPost, "/api/admin/users/user-1/mappings", "admin-1", types.RoleAdmin, types.SensorMapping{
			Label:         "Apartment 1",
			UsageSensorID: "sensor.apt1_energy",
			PriceSensorID: "sensor.grid_price",
			Factor:        1,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.NotEmpty(t, saved.ID)
		assert.Equal(t, "user-1", saved.UserID)
	})

	t.Run("CreateValidation", func(t *testing.T) {
		ms := &mockStorage{}
		ms.On("GetUser", mock.Anything, "user-1").Return(types.User{ID: "user-1"}, nil)
		_, h := newTestServer(ms, nil)

		// non-virtual without a usage counter
		w := doRequest(h, http.MethodPost, "/api/admin/users/user-1/mappings", "admin-1", types.RoleAdmin, types.SensorMapping{
			Label:  "Apartment 1",
			Factor: 1,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		// zero factor on a metered mapping
		w = doRequest(h, http.MethodPost, "/api/admin/users/user-1/mappings", "admin-1", types.RoleAdmin, types.SensorMapping{
			Label:         "Apartment 1",
			UsageSensorID: "sensor.apt1_energy",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CreateContainerOnly", func(t *testing.T) {
		// a virtual group container has no sensor and no factor
		ms := &mockStorage{}
		ms.On("GetUser", mock.Anything, "user-1").Return(types.User{ID: "user-1"}, nil)
		ms.On("CreateMapping", mock.Anything, mock.AnythingOfType("types.SensorMapping")).Return(nil)

		_, h := newTestServer(ms, nil)
		w := doRequest(h, http.MethodPost, "/api/admin/users/user-1/mappings", "admin-1", types.RoleAdmin, types.SensorMapping{
			Label:          "Heat Pumps",
			IsVirtual:      true,
			VirtualGroupID: "vg-1",
		})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("Update", func(t *testing.T) {
		ms := &mockStorage{}
		var saved types.SensorMapping
		ms.On("UpdateMapping", mock.Anything, mock.AnythingOfType("types.SensorMapping")).Run(func(args mock.Arguments) {
			saved = args.Get(1).(types.SensorMapping)
		}).Return(nil)

		_, h := newTestServer(ms, nil)
		w := doRequest(h, http.MethodPut, "/api/admin/users/user-1/mappings/map-1", "admin-1", types.RoleAdmin, types.SensorMapping{
			Label:         "Apartment 1",
			UsageSensorID: "sensor.apt1_energy",
			Factor:        0.5,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "map-1", saved.ID)
		assert.Equal(t, "user-1", saved.UserID)
		assert.Equal(t, 0.5, saved.Factor)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		ms := &mockStorage{}
		ms.On("UpdateMapping", mock.Anything, mock.AnythingOfType("types.SensorMapping")).Return(storage.ErrMappingNotFound)

		_, h := newTestServer(ms, nil)
		w := doRequest(h, http.MethodPut, "/api/admin/users/user-1/mappings/missing", "admin-1", types.RoleAdmin, types.SensorMapping{
			Label:         "Apartment 1",
			UsageSensorID: "sensor.apt1_energy",
			Factor:        1,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		ms := &mockStorage{}
		ms.On("DeleteMapping", mock.Anything, "user-1", "map-1").Return(nil)

		_, h := newTestServer(ms, nil)
		w := doRequest(h, http.MethodDelete, "/api/admin/users/user-1/mappings/map-1", "admin-1", types.RoleAdmin, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
