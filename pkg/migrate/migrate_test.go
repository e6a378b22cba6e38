package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beadshop-backend/pkg/config"
)

func TestShippedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestMigrationsCoverCheckoutSchema(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	var all strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		all.Write(data)
	}
	content := all.String()
	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE TABLE IF NOT EXISTS users",
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CREATE TABLE IF NOT EXISTS payment_attempts",
		"CONSTRAINT ux_webhook_events_provider_event UNIQUE (provider, external_event_id)",
		"CONSTRAINT ux_shipments_order_id UNIQUE (order_id)",
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
	} {
		assert.Contains(t, content, stmt)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Gift Wrap!")
	require.NoError(t, err)
	assert.Regexp(t, `\d{14}_add_gift_wrap\.sql$`, filepath.Base(path))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, ValidateDir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_init.sql"), []byte("-- +goose Up\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestShouldAutoRun(t *testing.T) {
	assert.False(t, shouldAutoRun(nil))
	assert.False(t, shouldAutoRun(&config.Config{App: config.AppConfig{Env: config.AppEnvProd, AutoMigrate: true}}))
	assert.False(t, shouldAutoRun(&config.Config{App: config.AppConfig{Env: config.AppEnvDev}}))
	assert.True(t, shouldAutoRun(&config.Config{App: config.AppConfig{Env: config.AppEnvDev, AutoMigrate: true}}))
}
