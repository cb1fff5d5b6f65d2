package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/pkg/database"
)

func TestMigrations_ApplyInOrder(t *testing.T) {
	names, err := database.PendingMigrations(FS)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init.up.sql", "000002_seed_rbac.up.sql"}, names)
}

func TestSeed_MatchesDefaultCatalogue(t *testing.T) {
	content, err := fs.ReadFile(FS, "000002_seed_rbac.up.sql")
	require.NoError(t, err)
	seed := string(content)

	for name, p := range domain.DefaultPermissions {
		assert.Contains(t, seed, "('"+name+"', '"+p.ResourceType+"', '"+p.Action+"'", "permission %s", name)
	}
	for role, perms := range domain.DefaultRoles {
		assert.Contains(t, seed, "WHERE r.name = '"+role+"'", "role %s", role)
		for _, perm := range perms {
			assert.Contains(t, seed, "'"+perm+"'")
		}
	}
}

func TestInit_DeclaresRotationColumns(t *testing.T) {
	content, err := fs.ReadFile(FS, "000001_init.up.sql")
	require.NoError(t, err)
	schema := string(content)

	for _, col := range []string{"token_hash", "access_token_jti", "replaced_by", "version"} {
		assert.True(t, strings.Contains(schema, col), "missing column %s", col)
	}
}
