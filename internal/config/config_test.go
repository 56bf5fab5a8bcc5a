package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestFlags(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd)
	return cmd
}

func TestLoadFromFlags(t *testing.T) {
	cmd := newTestFlags(t)
	require.NoError(t, cmd.Flags().Set("organization", "contoso"))
	require.NoError(t, cmd.Flags().Set("project", "MyProject"))

	cfg, err := Load(cmd.Flags())
	require.NoError(t, err)
	require.Equal(t, "contoso", cfg.Organization)
	require.Equal(t, "MyProject", cfg.Project)
	require.Equal(t, defaultBaseURL, cfg.BaseURL)
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresOrganization(t *testing.T) {
	cfg := &Config{Project: "p"}
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresProjectOrAreaPath(t *testing.T) {
	cfg := &Config{Organization: "contoso"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "project or areaPath")
}

func TestValidatePassesWithAreaPathOnly(t *testing.T) {
	cfg := &Config{Organization: "contoso", AreaPath: `MyProject\TeamA`}
	require.NoError(t, cfg.Validate())
}

func TestEffectiveProjectFallsBackToAreaPathFirstSegment(t *testing.T) {
	cfg := &Config{AreaPath: `MyProject\TeamA\Sub`}
	require.Equal(t, "MyProject", cfg.EffectiveProject())
}

func TestEffectiveProjectPrefersProject(t *testing.T) {
	cfg := &Config{Project: "Explicit", AreaPath: `Other\TeamA`}
	require.Equal(t, "Explicit", cfg.EffectiveProject())
}

func TestEffectiveProjectAreaPathWithNoSeparator(t *testing.T) {
	cfg := &Config{AreaPath: "SoloProject"}
	require.Equal(t, "SoloProject", cfg.EffectiveProject())
}

func TestVerboseFlagEnablesDebug(t *testing.T) {
	cmd := newTestFlags(t)
	require.NoError(t, cmd.Flags().Set("organization", "contoso"))
	require.NoError(t, cmd.Flags().Set("project", "p"))
	require.NoError(t, cmd.Flags().Set("verbose", "true"))

	cfg, err := Load(cmd.Flags())
	require.NoError(t, err)
	require.True(t, cfg.Debug)
}

func TestMCPDebugEnvOverridesEvenWithoutPrefix(t *testing.T) {
	t.Setenv("MCP_DEBUG", "1")
	cmd := newTestFlags(t)
	require.NoError(t, cmd.Flags().Set("organization", "contoso"))
	require.NoError(t, cmd.Flags().Set("project", "p"))

	cfg, err := Load(cmd.Flags())
	require.NoError(t, err)
	require.True(t, cfg.Debug)
}

func TestADOMCPPrefixedEnvVarIsPickedUp(t *testing.T) {
	t.Setenv("ADO_MCP_ORGANIZATION", "env-org")
	cmd := newTestFlags(t)
	require.NoError(t, cmd.Flags().Set("project", "p"))

	cfg, err := Load(cmd.Flags())
	require.NoError(t, err)
	require.Equal(t, "env-org", cfg.Organization)
}

