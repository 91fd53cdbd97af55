package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./bountyvault-data", cfg.DataDir)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, ":9090", cfg.MetricsAddress)
	require.Equal(t, "local", cfg.Environment)
	require.Empty(t, cfg.Whitelist)
	require.EqualValues(t, 10, cfg.AbuseMaxOperations)
	require.EqualValues(t, 3600, cfg.AbuseWindowSeconds)
	require.EqualValues(t, 60, cfg.AbuseCooldownSeconds)

	// The default file is persisted and loads back identically.
	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
DataDir = "/var/lib/bountyvault"
MetricsAddress = ":9191"
Environment = "production"
AdminAddress = "0x00112233445566778899aabbccddeeff00112233"
TokenAddress = "ffeeddccbbaa99887766554433221100ffeeddcc"
Whitelist = ["0x00112233445566778899aabbccddeeff00112233"]
AbuseMaxOperations = 25
AbuseWindowSeconds = 600
AbuseCooldownSeconds = 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/bountyvault", cfg.DataDir)
	require.Equal(t, "production", cfg.Environment)

	abuse := cfg.AbuseConfig()
	require.EqualValues(t, 25, abuse.MaxOperations)
	require.EqualValues(t, 600, abuse.WindowSize)
	require.EqualValues(t, 5, abuse.CooldownPeriod)

	admin, err := cfg.Admin()
	require.NoError(t, err)
	require.Equal(t, byte(0x00), admin[0])
	require.Equal(t, byte(0x33), admin[19])

	token, err := cfg.Token()
	require.NoError(t, err)
	require.Equal(t, byte(0xff), token[0])

	listed, err := cfg.WhitelistAddresses()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, admin, listed[0])
}

func TestLoadFillsMissingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`MetricsAddress = ":9191"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./bountyvault-data", cfg.DataDir)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, "local", cfg.Environment)
	require.NotNil(t, cfg.Whitelist)
	require.EqualValues(t, 10, cfg.AbuseMaxOperations)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x00112233445566778899AABBCCDDEEFF00112233")
	require.NoError(t, err)
	require.Equal(t, byte(0x11), addr[1])

	bare, err := ParseAddress("00112233445566778899aabbccddeeff00112233")
	require.NoError(t, err)
	require.Equal(t, addr, bare)

	_, err = ParseAddress("")
	require.Error(t, err)
	_, err = ParseAddress("0x1234")
	require.Error(t, err)
	_, err = ParseAddress("zz112233445566778899aabbccddeeff00112233")
	require.Error(t, err)
}

func TestWhitelistAddressesRejectsBadEntry(t *testing.T) {
	cfg := &Config{Whitelist: []string{"0x00112233445566778899aabbccddeeff00112233", "nope"}}
	_, err := cfg.WhitelistAddresses()
	require.Error(t, err)
}
