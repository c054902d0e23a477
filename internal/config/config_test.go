package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresCryptoKey(t *testing.T) {
	t.Setenv("CRYPTO_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRYPTO_KEY")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CRYPTO_KEY", "a2V5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.Portal.ID)
	assert.Equal(t, 3, cfg.Portal.MaxNextClicks)
	assert.Equal(t, 10, cfg.Portal.ItemsLookback)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeouts.Click)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeouts.Expand)
	assert.Equal(t, 800*time.Millisecond, cfg.Timeouts.Settle)
	assert.False(t, cfg.Portal.HasEnvAccount())
}

func TestLoad_UnboundedNextClicks(t *testing.T) {
	t.Setenv("CRYPTO_KEY", "a2V5")

	for _, v := range []string{"none", "", "-1", "unlimited"} {
		t.Setenv("PORTAL_MAX_NEXT_CLICKS", v)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, -1, cfg.Portal.MaxNextClicks, "value %q", v)
	}

	t.Setenv("PORTAL_MAX_NEXT_CLICKS", "7")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Portal.MaxNextClicks)
}

func TestLoad_RejectsHalfEnvAccount(t *testing.T) {
	t.Setenv("CRYPTO_KEY", "a2V5")
	t.Setenv("PORTAL_LOGIN", "buyer@example.com")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("CRYPTO_KEY", "a2V5")
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
}

func TestPortalURLs(t *testing.T) {
	p := PortalConfig{BaseURL: "https://portal.example.com/"}

	assert.Equal(t, "https://portal.example.com/sessions/supplier_login", p.LoginURL())
	assert.Equal(t, "https://portal.example.com/quote_supplier_land", p.EventsURL())
	assert.Equal(t, "https://portal.example.com/quotes/external_responses/42", p.DetailURL(42))
}

func TestDatabaseDSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: DriverSQLite, Path: "/tmp/h.db"}
	assert.Equal(t, "/tmp/h.db", sqlite.DSN())

	pg := DatabaseConfig{Driver: DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", pg.DSN())
}
