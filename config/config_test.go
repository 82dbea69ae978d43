package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"apartments-bot/scraper"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, scraper.DefaultURL, cfg.Catalog.URL)
	require.Equal(t, "0 0 * * *", cfg.Schedule.Cron)
	require.Equal(t, "sqlite", cfg.Store.Driver)
	require.True(t, cfg.Browser.Headless)
	require.Equal(t, scraper.DefaultSelectors(), cfg.Catalog.Selectors)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
catalog:
  selectors:
    grid: ".catalog-grid"
  timing:
    dialog: 8s
    scroll_step: 400
browser:
  headless: false
schedule:
  cron: "30 6 * * *"
  replace_on_empty: true
telegram:
  allowed_user_ids: [1, 2]
  max_results: 10
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ".catalog-grid", cfg.Catalog.Selectors.Grid)
	require.Equal(t, scraper.DefaultSelectors().ItemCard, cfg.Catalog.Selectors.ItemCard)
	require.Equal(t, 8*time.Second, cfg.Catalog.Timing.Dialog)
	require.Equal(t, 400, cfg.Catalog.Timing.ScrollStep)
	require.Equal(t, 10*time.Second, cfg.Catalog.Timing.Grid)
	require.False(t, cfg.Browser.Headless)
	require.Equal(t, "30 6 * * *", cfg.Schedule.Cron)
	require.True(t, cfg.Schedule.ReplaceOnEmpty)
	require.Equal(t, []int64{1, 2}, cfg.Telegram.AllowedUserIDs)
	require.Equal(t, 10, cfg.Telegram.MaxResults)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/apartments?sslmode=disable")
	t.Setenv("PORT", "8080")
	t.Setenv("WEBHOOK_URL", "https://bot.example.com")
	t.Setenv("BOT_DATA_DIR", "/data/chrome")
	t.Setenv("ADMIN_CHAT_ID", "420")
	t.Setenv("ALLOWED_USER_IDS", "7, 8,")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, "8080", cfg.HTTP.Port)
	require.Equal(t, "https://bot.example.com", cfg.Telegram.WebhookURL)
	require.Equal(t, "/data/chrome", cfg.Browser.DataDir)
	require.Equal(t, int64(420), cfg.Telegram.AdminChatID)
	require.Equal(t, []int64{7, 8}, cfg.Telegram.AllowedUserIDs)
}

func TestInvalidConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", "store:\n  driver: mysql\n")
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "store.driver")

	path = writeFile(t, "broken.yaml", "catalog: [")
	_, err = LoadConfig(path)
	require.ErrorContains(t, err, "failed to parse")

	t.Setenv("ADMIN_CHAT_ID", "admin")
	_, err = LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "ADMIN_CHAT_ID")
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := writeFile(t, ".env", "APARTMENTS_TEST_VALUE=from-dotenv\n")
	t.Setenv("APARTMENTS_TEST_VALUE", "")
	os.Unsetenv("APARTMENTS_TEST_VALUE")
	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "from-dotenv", os.Getenv("APARTMENTS_TEST_VALUE"))
}
