package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"admin", RoleAdmin, false},
		{"manager", RoleManager, false},
		{"sales_rep", RoleSalesRep, false},
		{" Viewer ", RoleViewer, false},
		{"superuser", Role{}, true},
		{"", Role{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownRole)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("opportunity:update:all")
	require.NoError(t, err)
	assert.Equal(t, OpportunityUpdateAll, p)

	_, err = ParsePermission("lead:destroy")
	assert.ErrorIs(t, err, ErrUnknownPermission)
}

func TestCatalog(t *testing.T) {
	cat := Catalog()
	// six entities with seven permissions each, plus ten bare verbs
	assert.Len(t, cat, 6*7+10)
	for i := 1; i < len(cat); i++ {
		assert.Less(t, cat[i-1].String(), cat[i].String())
	}
}

func TestPermissionCategories(t *testing.T) {
	assert.True(t, LeadRead.IsRead())
	assert.True(t, LeadReadAll.IsRead())
	assert.False(t, LeadUpdate.IsRead())
	assert.False(t, ReportingView.IsRead())
	assert.True(t, LeadDeleteAll.IsTenantWide())
	assert.False(t, LeadDelete.IsTenantWide())
}

func TestMarshalText(t *testing.T) {
	out, err := json.Marshal(map[string]any{
		"role":  RoleSalesRep,
		"perms": []Permission{LeadRead, AuditView},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"sales_rep","perms":["lead:read","audit:view"]}`, string(out))
}

func TestPermissionsOf(t *testing.T) {
	ep := PermissionsOf(EntityContact)
	assert.Equal(t, ContactUpdate, ep.Update)
	assert.Equal(t, ContactDeleteAll, ep.DeleteAll)
	assert.True(t, PermissionsOf(Entity{}).Update.IsZero())
}
