package tlsconf

import (
	"testing"

	"github.com/peternagy/tablemoins/internal/types"
)

func TestBuild_Disabled(t *testing.T) {
	cfg, err := Build(types.SSLConfig{}, "db.local")
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config for disabled SSL, got %v, %v", cfg, err)
	}
}

func TestBuild_VerifyFlag(t *testing.T) {
	cfg, err := Build(types.SSLConfig{Enabled: true, RejectUnauthorized: true}, "db.local")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cfg.InsecureSkipVerify {
		t.Error("RejectUnauthorized should enable verification")
	}
	if cfg.ServerName != "db.local" {
		t.Errorf("server name = %q", cfg.ServerName)
	}
}

func TestBuild_InvalidMaterial(t *testing.T) {
	if _, err := Build(types.SSLConfig{Enabled: true, CA: "not pem"}, ""); err == nil {
		t.Error("expected error for invalid CA")
	}
	if _, err := Build(types.SSLConfig{Enabled: true, Cert: "x"}, ""); err == nil {
		t.Error("expected error for cert without key")
	}
}
