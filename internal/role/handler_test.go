package role

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth/internal/role/entity"
)

type fakeLister struct {
	roles []*entity.Role
	err   error
}

func (f fakeLister) List(context.Context) ([]*entity.Role, error) { return f.roles, f.err }

func TestHandlerList(t *testing.T) {
	h := NewHandler(NewService(fakeLister{roles: []*entity.Role{
		{ID: 5, Name: "tenant", Permissions: []string{"profile:read"}},
	}}), zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/roles", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []entity.Role
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 1)
	require.Equal(t, "tenant", got[0].Name)
	require.Equal(t, []string{"profile:read"}, got[0].Permissions)
}

func TestHandlerListError(t *testing.T) {
	h := NewHandler(NewService(fakeLister{err: errors.New("boom")}), zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/roles", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSelfAssignable(t *testing.T) {
	require.True(t, entity.SelfAssignable("tenant"))
	require.True(t, entity.SelfAssignable("landlord"))
	require.False(t, entity.SelfAssignable("admin"))
	require.False(t, entity.SelfAssignable("super_admin"))
}
