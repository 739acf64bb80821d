package config

import "testing"

func TestRedactedConfigScrubsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Signer.KeyPassword = "hunter2"
	cfg.Indexer.APIKey = "indexer-secret"
	cfg.Database.Password = "db-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.AccessKey = "ak"
	cfg.S3.SecretKey = "sk"
	cfg.Notify.TelegramToken = "tg-token"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/webhook/secret"

	redacted := RedactedConfig(&cfg)

	secretFields := map[string]string{
		"Signer.PrivateKey":         redacted.Signer.PrivateKey,
		"Signer.KeyPassword":        redacted.Signer.KeyPassword,
		"Indexer.APIKey":            redacted.Indexer.APIKey,
		"Database.Password":         redacted.Database.Password,
		"Redis.Password":            redacted.Redis.Password,
		"S3.AccessKey":              redacted.S3.AccessKey,
		"S3.SecretKey":              redacted.S3.SecretKey,
		"Notify.TelegramToken":      redacted.Notify.TelegramToken,
		"Notify.DiscordWebhookURL":  redacted.Notify.DiscordWebhookURL,
	}
	for field, got := range secretFields {
		if got != "***" {
			t.Errorf("%s = %q, want the redaction placeholder", field, got)
		}
	}
}

func TestRedactedConfigPreservesNonSecretFields(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 9000
	cfg.Indexer.URL = "https://indexer.example.com/graphql"

	redacted := RedactedConfig(&cfg)

	if redacted.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", redacted.Server.Port)
	}
	if redacted.Indexer.URL != cfg.Indexer.URL {
		t.Errorf("Indexer.URL was unexpectedly altered")
	}
}

func TestRedactedConfigDoesNotMutateOriginal(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "db-secret"
	cfg.Server.CORSOrigins = []string{"https://a.example"}

	redacted := RedactedConfig(&cfg)
	redacted.Server.CORSOrigins[0] = "mutated"

	if cfg.Database.Password != "db-secret" {
		t.Error("RedactedConfig must not mutate the original config's secrets")
	}
	if cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Error("RedactedConfig must deep-copy slices so the original is not aliased")
	}
}

func TestRedactLeavesEmptyStringsAlone(t *testing.T) {
	s := ""
	redact(&s)
	if s != "" {
		t.Errorf("redact() should not replace an empty string, got %q", s)
	}
}
