package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, mode Mode) *Service {
	t.Helper()
	svc, err := NewService(Config{FlagProvider: NewStaticFlagProvider(mode)})
	require.NoError(t, err)
	return svc
}

func TestAuthorizeRoles_DefaultPolicies(t *testing.T) {
	svc := newTestService(t, ModeEnforce)
	ctx := context.Background()

	cases := []struct {
		name    string
		roles   []string
		object  string
		action  string
		allowed bool
	}{
		{"employee reads edges", []string{"employee"}, ObjectHierarchyEdges, ActionRead, true},
		{"employee cannot write edges", []string{"employee"}, ObjectHierarchyEdges, ActionWrite, false},
		{"manager inherits employee reads", []string{"manager"}, ObjectHierarchyEdges, ActionRead, true},
		{"manager cannot validate", []string{"manager"}, ObjectHierarchyValidation, ActionRead, false},
		{"admin writes edges", []string{"admin"}, ObjectHierarchyEdges, ActionWrite, true},
		{"admin assigns roles", []string{"admin"}, ObjectUserRoles, ActionWrite, true},
		{"super admin wildcard", []string{"super_admin"}, "anything.at_all", "purge", true},
		{"any held role suffices", []string{"employee", "admin"}, ObjectHierarchyEdges, ActionWrite, true},
		{"unknown role denied", []string{"contractor"}, ObjectHierarchyEdges, ActionRead, false},
		{"no roles denied", nil, ObjectHierarchyEdges, ActionRead, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.AuthorizeRoles(ctx, tc.roles, tc.object, tc.action)
			if tc.allowed {
				require.NoError(t, err)
				return
			}
			var forbidden *ForbiddenError
			require.ErrorAs(t, err, &forbidden)
			assert.Equal(t, errorCodeForbidden, forbidden.Code())
		})
	}
}

func TestAuthorizeRoles_ShadowAndDisabledNeverDeny(t *testing.T) {
	for _, mode := range []Mode{ModeShadow, ModeDisabled} {
		svc := newTestService(t, mode)
		require.NoError(t, svc.AuthorizeRoles(context.Background(), []string{"employee"}, ObjectUserRoles, ActionWrite))
	}
}

func TestNewService_FilePolicies(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.conf")
	policyPath := filepath.Join(dir, "policy.csv")
	require.NoError(t, os.WriteFile(modelPath, []byte(defaultModel), 0o600))
	require.NoError(t, os.WriteFile(policyPath, []byte("p, role:auditor, hierarchy.validation, read\n"), 0o600))

	svc, err := NewService(Config{
		ModelPath:    modelPath,
		PolicyPath:   policyPath,
		FlagProvider: NewStaticFlagProvider(ModeEnforce),
	})
	require.NoError(t, err)

	require.NoError(t, svc.AuthorizeRoles(context.Background(), []string{"auditor"}, ObjectHierarchyValidation, ActionRead))
	require.Error(t, svc.AuthorizeRoles(context.Background(), []string{"admin"}, ObjectHierarchyValidation, ActionRead))
	require.NoError(t, svc.ReloadPolicy(context.Background()))
}

func TestNewService_RejectsHalfConfiguredFiles(t *testing.T) {
	_, err := NewService(Config{ModelPath: "model.conf"})
	require.Error(t, err)
}

func TestFileFlagProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	provider := NewFileFlagProvider(path, ModeShadow)

	assert.Equal(t, ModeShadow, provider.Mode())

	require.NoError(t, os.WriteFile(path, []byte("mode: enforce\n"), 0o600))
	assert.Equal(t, ModeEnforce, provider.Mode())

	require.NoError(t, os.Remove(path))
	assert.Equal(t, ModeEnforce, provider.Mode(), "last known mode survives a missing file")
}

func TestSubjectAndObjectNames(t *testing.T) {
	assert.Equal(t, "role:admin", SubjectForRole("Admin"))
	assert.Equal(t, "role:admin", SubjectForRole("role:admin"))
	assert.Equal(t, "hierarchy.edges", ObjectName(" Hierarchy ", "EDGES"))
	assert.Equal(t, "*", NormalizeAction(" "))
}
