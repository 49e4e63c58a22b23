package config

import (
	"errors"
	"testing"

	"github.com/macq/tomtom-priority-queue/internal/errs"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		Env.BaseURL, Env.Version, Env.Key, Env.LogLevel, Env.TmpFolder, Env.HomeFolder,
		Env.ProxyIP, Env.ProxyPort, Env.ProxyUsername, Env.ProxyPassword, Env.QueueLoopSecond,
	} {
		t.Setenv(name, "")
	}
}

func TestLoadRequiresBaseURLKeyAndVersion(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); !errors.Is(err, errs.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured with nothing set, got %v", err)
	}

	t.Setenv(Env.BaseURL, "api.example.com")
	if _, err := Load(); !errors.Is(err, errs.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured with key/version still unset, got %v", err)
	}

	t.Setenv(Env.Key, "secret")
	if _, err := Load(); !errors.Is(err, errs.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured with version still unset, got %v", err)
	}

	t.Setenv(Env.Version, "1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load to succeed once base url/key/version are set, got %v", err)
	}
	if cfg.BaseURL != "api.example.com" || cfg.Key != "secret" || cfg.Version != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LoopPeriod.Seconds() != 60 {
		t.Fatalf("expected the default 60s loop period, got %v", cfg.LoopPeriod)
	}
}

func TestLoadRejectsPartialProxy(t *testing.T) {
	clearEnv(t)
	t.Setenv(Env.BaseURL, "api.example.com")
	t.Setenv(Env.Key, "secret")
	t.Setenv(Env.Version, "1")
	t.Setenv(Env.ProxyIP, "10.0.0.1")

	if _, err := Load(); !errors.Is(err, errs.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured for a partially-set proxy, got %v", err)
	}
}

func TestLoadAcceptsCompleteProxy(t *testing.T) {
	clearEnv(t)
	t.Setenv(Env.BaseURL, "api.example.com")
	t.Setenv(Env.Key, "secret")
	t.Setenv(Env.Version, "1")
	t.Setenv(Env.ProxyIP, "10.0.0.1")
	t.Setenv(Env.ProxyPort, "8080")
	t.Setenv(Env.ProxyUsername, "u")
	t.Setenv(Env.ProxyPassword, "p")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load to succeed with a complete proxy, got %v", err)
	}
	if cfg.Proxy == nil || cfg.Proxy.Port != 8080 {
		t.Fatalf("unexpected proxy: %+v", cfg.Proxy)
	}
}

func TestLoadHonorsCustomLoopPeriod(t *testing.T) {
	clearEnv(t)
	t.Setenv(Env.BaseURL, "api.example.com")
	t.Setenv(Env.Key, "secret")
	t.Setenv(Env.Version, "1")
	t.Setenv(Env.QueueLoopSecond, "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LoopPeriod.Seconds() != 30 {
		t.Fatalf("expected a 30s loop period, got %v", cfg.LoopPeriod)
	}
}
