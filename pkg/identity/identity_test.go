package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Treystu/SCMessenger-sub006/pkg/config"
)

func TestGenerateWhenUnconfigured(t *testing.T) {
	priv, pid, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "ed25519"})
	if err != nil {
		t.Fatalf("LoadOrGenEd25519: %v", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		t.Fatalf("key size: got %d", len(priv))
	}
	if !strings.HasPrefix(string(pid), "pk:ed25519:") {
		t.Fatalf("peer id: got %s", pid)
	}
}

func TestGeneratedPrivateKeyNeverLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	priv, _, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "ed25519"})
	if err != nil {
		t.Fatalf("LoadOrGenEd25519: %v", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(priv)
	for _, entry := range logs.All() {
		if strings.Contains(entry.Message, secret) {
			t.Fatalf("private key leaked into log message %q", entry.Message)
		}
		for _, f := range entry.Context {
			if strings.Contains(f.String, secret) {
				t.Fatalf("private key leaked into log field %q", f.Key)
			}
		}
	}
}

func TestGeneratePersistsToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.key")
	cfg := config.IdentityConfig{Alg: "ed25519", PrivateKeyFile: path}

	priv, pid, err := LoadOrGenEd25519(cfg)
	if err != nil {
		t.Fatalf("LoadOrGenEd25519: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("generated key not persisted: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("key file perms: got %v, want 0600", info.Mode().Perm())
	}

	// a second run reloads the same identity instead of generating a new one
	again, pid2, err := LoadOrGenEd25519(cfg)
	if err != nil {
		t.Fatalf("LoadOrGenEd25519: %v", err)
	}
	if !again.Equal(priv) || pid2 != pid {
		t.Fatalf("identity not stable across restarts: %s != %s", pid2, pid)
	}
}

func TestLoadFromBase64(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	enc := base64.RawURLEncoding.EncodeToString(priv)

	got, pid1, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "ed25519", PrivateKey: enc})
	if err != nil {
		t.Fatalf("LoadOrGenEd25519: %v", err)
	}
	if !got.Equal(priv) {
		t.Fatalf("loaded key differs from configured key")
	}

	// same key always derives the same peer id
	_, pid2, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "ed25519", PrivateKey: enc})
	if err != nil {
		t.Fatalf("LoadOrGenEd25519: %v", err)
	}
	if pid1 != pid2 {
		t.Fatalf("peer id not stable: %s != %s", pid1, pid2)
	}
}

func TestLoadFromFile(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id.key")
	if err := os.WriteFile(path, []byte(base64.RawURLEncoding.EncodeToString(priv)), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	got, _, err := LoadOrGenEd25519(config.IdentityConfig{Alg: "ed25519", PrivateKeyFile: path})
	if err != nil {
		t.Fatalf("LoadOrGenEd25519: %v", err)
	}
	if !got.Equal(priv) {
		t.Fatalf("loaded key differs from file key")
	}
}
