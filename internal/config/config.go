// Package config loads the environment variables described in SPEC_FULL.md
// §6.3 into a typed Config. Everything else (argument parsing, flags,
// pretty-printing) is a CLI concern and lives outside this package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/macq/tomtom-priority-queue/internal/errs"
)

// Env names the recognized environment variables, prefixed TOMTOM_.
var Env = struct {
	BaseURL         string
	Version         string
	Key             string
	LogLevel        string
	TmpFolder       string
	HomeFolder      string
	ProxyIP         string
	ProxyPort       string
	ProxyUsername   string
	ProxyPassword   string
	QueueLoopSecond string
}{
	BaseURL:         "TOMTOM_BASE_URL",
	Version:         "TOMTOM_VERSION",
	Key:             "TOMTOM_KEY",
	LogLevel:        "TOMTOM_LOG_LEVEL",
	TmpFolder:       "TOMTOM_TMP_FOLDER",
	HomeFolder:      "TOMTOM_HOME_FOLDER",
	ProxyIP:         "TOMTOM_PROXY_IP",
	ProxyPort:       "TOMTOM_PROXY_PORT",
	ProxyUsername:   "TOMTOM_PROXY_USERNAME",
	ProxyPassword:   "TOMTOM_PROXY_PASSWORD",
	QueueLoopSecond: "TOMTOM_QUEUE_LOOP_DURATION",
}

// Proxy holds optional forward-proxy settings. Either all four fields are
// set, or Proxy is the zero value.
type Proxy struct {
	IP       string
	Port     int
	Username string
	Password string
}

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	BaseURL    string
	Version    int
	Key        string
	LogLevel   string
	TmpFolder  string
	HomeFolder string
	Proxy      *Proxy
	LoopPeriod time.Duration
}

// Load reads the environment and validates it, returning a Misconfigured
// error (wrapping errs.ErrMisconfigured) for anything spec.md §7 lists as fatal
// at construction time: missing key/version/url, or a partially-specified
// proxy.
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:    os.Getenv(Env.BaseURL),
		Key:        os.Getenv(Env.Key),
		LogLevel:   envOr(Env.LogLevel, "info"),
		TmpFolder:  envOr(Env.TmpFolder, os.TempDir()),
		HomeFolder: envOr(Env.HomeFolder, defaultHome()),
		LoopPeriod: 60 * time.Second,
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s is required", errs.ErrMisconfigured, Env.BaseURL)
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("%w: %s is required", errs.ErrMisconfigured, Env.Key)
	}

	versionStr := os.Getenv(Env.Version)
	if versionStr == "" {
		return nil, fmt.Errorf("%w: %s is required", errs.ErrMisconfigured, Env.Version)
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer: %v", errs.ErrMisconfigured, Env.Version, err)
	}
	cfg.Version = version

	if loopStr := os.Getenv(Env.QueueLoopSecond); loopStr != "" {
		seconds, err := strconv.Atoi(loopStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer: %v", errs.ErrMisconfigured, Env.QueueLoopSecond, err)
		}
		cfg.LoopPeriod = time.Duration(seconds) * time.Second
	}

	proxy, err := loadProxy()
	if err != nil {
		return nil, err
	}
	cfg.Proxy = proxy

	return cfg, nil
}

func loadProxy() (*Proxy, error) {
	ip := os.Getenv(Env.ProxyIP)
	portStr := os.Getenv(Env.ProxyPort)
	username := os.Getenv(Env.ProxyUsername)
	password := os.Getenv(Env.ProxyPassword)

	set := []bool{ip != "", portStr != "", username != "", password != ""}
	anySet, allSet := false, true
	for _, s := range set {
		anySet = anySet || s
		allSet = allSet && s
	}

	if !anySet {
		return nil, nil
	}
	if !allSet {
		return nil, fmt.Errorf(
			"%w: some of the proxy environment variables were given, but not all of them "+
				"(%s, %s, %s, %s must all be set or all be empty)",
			errs.ErrMisconfigured, Env.ProxyIP, Env.ProxyPort, Env.ProxyUsername, Env.ProxyPassword,
		)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer: %v", errs.ErrMisconfigured, Env.ProxyPort, err)
	}

	return &Proxy{IP: ip, Port: port, Username: username, Password: password}, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tomtom-priority-queue"
	}
	return home + "/.tomtom-priority-queue"
}
