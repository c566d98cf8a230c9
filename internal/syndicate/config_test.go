package syndicate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_FileOnly(t *testing.T) {
	path := writeConfig(t, `
twitter:
  api_key: k1
  api_secret: s1
mastodon:
  server: https://mastodon.example
  access_token: tok
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Has("twitter") || !cfg.Has("mastodon") {
		t.Fatalf("expected twitter and mastodon configured, got %v", cfg)
	}
	if cfg.Has("bluesky") {
		t.Fatal("bluesky must not be configured")
	}
	if got := cfg["twitter"].Get("api_key"); got != "k1" {
		t.Fatalf("api_key = %q, want k1", got)
	}
	if got := cfg["mastodon"].Get("server"); got != "https://mastodon.example" {
		t.Fatalf("server = %q", got)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
twitter:
  api_key: from-file
`)
	t.Setenv("SYNDICATE_TWITTER_API_KEY", "from-env")
	t.Setenv("SYNDICATE_DISCORD_BOT_TOKEN", "bot-tok")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg["twitter"].Get("api_key"); got != "from-env" {
		t.Fatalf("expected env to win, got %q", got)
	}
	if got := cfg["discord"].Get("bot_token"); got != "bot-tok" {
		t.Fatalf("expected env-only platform to appear, got %q", got)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("SYNDICATE_SLACK_BOT_TOKEN", "xoxb-1")
	t.Setenv("SYNDICATE_SLACK_CHANNEL_ID", "C123")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Has("slack") {
		t.Fatal("expected slack configured from env alone")
	}
	if got := cfg["slack"].Get("channel_id"); got != "C123" {
		t.Fatalf("channel_id = %q", got)
	}
}

func TestLoadConfig_MissingFileIsError(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfig_NormalizesCaseAndWhitespace(t *testing.T) {
	path := writeConfig(t, `
Twitter:
  API_KEY: "  padded  "
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg["twitter"].Get("api_key"); got != "padded" {
		t.Fatalf("expected lowercase keys and trimmed value, got %q", got)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syndicate.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
