package store

import (
	"context"
	"testing"

	"github.com/claimdesk/claimdesk/internal/db"
)

func TestGetJWTSecret_GeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	// First call should generate a secret.
	secret1, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 == "" {
		t.Fatal("expected non-empty secret")
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	// Second call should return the same secret.
	secret2, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestSetAndGetSetting(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	value, err := GetSetting(ctx, database, SettingAdminPassHash)
	if err != nil {
		t.Fatal(err)
	}
	if value != "" {
		t.Fatalf("expected empty value for unset key, got %q", value)
	}

	if err := SetSetting(ctx, database, SettingAdminPassHash, "hash-1"); err != nil {
		t.Fatal(err)
	}
	if err := SetSetting(ctx, database, SettingAdminPassHash, "hash-2"); err != nil {
		t.Fatal(err)
	}

	value, _ = GetSetting(ctx, database, SettingAdminPassHash)
	if value != "hash-2" {
		t.Fatalf("expected hash-2, got %q", value)
	}
}

func TestEnsureGatewayKey_Stable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	key1, err := EnsureGatewayKey(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if key1 == "" {
		t.Fatal("expected non-empty gateway key")
	}

	key2, err := EnsureGatewayKey(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if key1 != key2 {
		t.Fatalf("expected stable key, got %q and %q", key1, key2)
	}
}
