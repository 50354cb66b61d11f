package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
identity:
  secret: test-secret
backend:
  admins: [root]
content:
  brand:
    name: Other Shop
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "lens_session", cfg.Gateway.SessionCookie)
	assert.Equal(t, "the-lens-cart", cfg.Storefront.CartKey)
	assert.Equal(t, "login_phone_draft", cfg.Storefront.PhoneDraftKey)
	assert.Equal(t, "+91 ", cfg.Storefront.DefaultPhonePrefix)
	assert.Equal(t, 30*time.Second, cfg.Storefront.ResendCooldown)
	assert.Equal(t, 4, cfg.Storefront.CodeLength)
	assert.Equal(t, 5*time.Second, cfg.Storefront.SessionTimeout)
	assert.Equal(t, []string{"root"}, cfg.Backend.Admins)
	assert.Equal(t, "test-secret", cfg.Identity.Secret)

	assert.Equal(t, "Other Shop", cfg.Content.Brand.Name)
	assert.Equal(t, "Shop", cfg.Content.Nav.Shop)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LENS_GATEWAY_PORT", "9090")
	t.Setenv("LENS_IDENTITY_SECRET", "from-env")
	path := writeConfig(t, `
identity:
  secret: from-file
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Gateway.Port)
	assert.Equal(t, "from-env", cfg.Identity.Secret)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	_, err := Load(writeConfig(t, `
storefront:
  code_length: 0
`))
	assert.ErrorContains(t, err, "code_length")

	_, err = Load(writeConfig(t, `
storefront:
  resend_cooldown: 100ms
`))
	assert.ErrorContains(t, err, "resend_cooldown")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestMySQLDSN(t *testing.T) {
	c := MySQLConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Database: "shop"}
	assert.Equal(t, "u:p@tcp(db:3306)/shop?charset=utf8mb4&parseTime=True&loc=Local", c.DSN())
}
