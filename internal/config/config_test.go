package config

import "testing"

func validConfig() Config {
	cfg := Defaults()
	cfg.Signer.PrivateKey = "0xdeadbeef"
	cfg.Signer.AllocatorAddress = "0x1111111111111111111111111111111111111111"
	cfg.Indexer.URL = "https://indexer.example.com/graphql"
	return cfg
}

func TestValidateAcceptsDefaultsPlusRequiredFields(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for an unrecognized log level")
	}
}

func TestValidateRequiresSignerKeyMaterial(t *testing.T) {
	cfg := validConfig()
	cfg.Signer.PrivateKey = ""
	cfg.Signer.EncryptedKeyPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when neither private_key nor encrypted_key_path is set")
	}
}

func TestValidateRequiresKeyPasswordWithEncryptedKey(t *testing.T) {
	cfg := validConfig()
	cfg.Signer.PrivateKey = ""
	cfg.Signer.EncryptedKeyPath = "/etc/compactd/key.enc"
	cfg.Signer.KeyPassword = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when encrypted_key_path is set without a key_password")
	}
}

func TestValidateRequiresIndexerURL(t *testing.T) {
	cfg := validConfig()
	cfg.Indexer.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for an empty indexer url")
	}
}

func TestValidateDatabasePoolBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Database.PoolMinConns = cfg.Database.PoolMaxConns + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when pool_min_conns exceeds pool_max_conns")
	}
}

func TestValidateRequiresS3EndpointWhenBucketSet(t *testing.T) {
	cfg := validConfig()
	cfg.S3.Bucket = "compactd-archive"
	cfg.S3.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when s3 bucket is set without an endpoint")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for a server port outside 1-65535")
	}
}
