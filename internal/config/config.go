package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/albert-vybestein/neobank/core"
	"github.com/joho/godotenv"
)

const (
	defaultChainID = 11155111
	defaultRPCURL  = "https://ethereum-sepolia-rpc.publicnode.com"
)

type Config struct {
	Port       int
	GinMode    string
	Production bool
	SiteURL    string
	LogLevel   string

	StoreBackend  string
	DataDir       string
	RedisURL      string
	EventsEnabled bool

	DeployMode        core.DeployMode
	DeployStrategy    core.DeployStrategy
	RPCURL            string
	ChainID           int64
	RelayerPrivateKey string
	ProxyFactory      string
	Singleton         string
	FallbackHandler   string

	PrivyAppID           string
	PrivyAppSecret       string
	PrivyVerificationKey string
	PrivyAPIURL          string

	ChallengeTTL time.Duration
	SessionTTL   time.Duration
}

// PrivyEnabled reports whether the Privy login flow can be served
func (c Config) PrivyEnabled() bool {
	return c.PrivyAppID != "" && c.PrivyAppSecret != ""
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:         3000,
		GinMode:      "release",
		StoreBackend: "file",
		DataDir:      ".data",
		DeployMode:   core.DeployModeMock,
		ChainID:      defaultChainID,
		ChallengeTTL: 5 * time.Minute,
		SessionTTL:   7 * 24 * time.Hour,
	}

	if raw := get(env, "PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}
	if raw := get(env, "GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}
	cfg.Production = strings.EqualFold(get(env, "APP_ENV"), "production")
	cfg.LogLevel = get(env, "LOG_LEVEL")

	cfg.SiteURL = firstNonEmpty(get(env, "NEXT_PUBLIC_SITE_URL"), get(env, "SITE_URL"))
	if cfg.SiteURL != "" {
		if u, err := url.Parse(cfg.SiteURL); err != nil || u.Scheme == "" || u.Host == "" {
			return Config{}, fmt.Errorf("invalid SITE_URL")
		}
	}

	if raw := strings.ToLower(get(env, "STORE_BACKEND")); raw != "" {
		if raw != "file" && raw != "redis" {
			return Config{}, fmt.Errorf("invalid STORE_BACKEND %q", raw)
		}
		cfg.StoreBackend = raw
	}
	if raw := get(env, "NEOBANK_DATA_DIR"); raw != "" {
		cfg.DataDir = raw
	}
	cfg.RedisURL = get(env, "REDIS_URL")
	if cfg.StoreBackend == "redis" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required for the redis store")
	}
	if raw := get(env, "EVENTS_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EVENTS_ENABLED")
		}
		cfg.EventsEnabled = enabled
	}
	if cfg.EventsEnabled && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required when EVENTS_ENABLED is set")
	}

	if get(env, "SAFE_DEPLOY_MODE") == "real" {
		cfg.DeployMode = core.DeployModeReal
	}
	pimlico := firstNonEmpty(get(env, "PIMLICO_RPC_URL"), get(env, "NEXT_PUBLIC_PIMLICO_RPC_URL"))
	cfg.RPCURL = firstNonEmpty(get(env, "SAFE_RPC_URL"), pimlico, defaultRPCURL)
	cfg.RelayerPrivateKey = strings.TrimPrefix(get(env, "SAFE_RELAYER_PRIVATE_KEY"), "0x")
	cfg.DeployStrategy = resolveStrategy(cfg.DeployMode, strings.ToLower(get(env, "SAFE_DEPLOY_STRATEGY")), pimlico != "", cfg.RelayerPrivateKey != "")
	if raw := get(env, "SAFE_CHAIN_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Config{}, fmt.Errorf("invalid SAFE_CHAIN_ID")
		}
		cfg.ChainID = id
	}
	cfg.ProxyFactory = get(env, "SAFE_PROXY_FACTORY")
	cfg.Singleton = get(env, "SAFE_SINGLETON")
	cfg.FallbackHandler = get(env, "SAFE_FALLBACK_HANDLER")

	cfg.PrivyAppID = get(env, "PRIVY_APP_ID")
	cfg.PrivyAppSecret = get(env, "PRIVY_APP_SECRET")
	cfg.PrivyVerificationKey = strings.ReplaceAll(get(env, "PRIVY_VERIFICATION_KEY"), `\n`, "\n")
	cfg.PrivyAPIURL = get(env, "PRIVY_API_URL")

	var err error
	if cfg.ChallengeTTL, err = duration(env, "CHALLENGE_TTL", cfg.ChallengeTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = duration(env, "SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// resolveStrategy picks how real deployments run. An explicit choice wins,
// then a bundler endpoint selects erc4337, then a relayer key selects relay.
func resolveStrategy(mode core.DeployMode, explicit string, hasBundler, hasRelayer bool) core.DeployStrategy {
	if mode == core.DeployModeMock {
		return core.DeployStrategyMock
	}
	switch core.DeployStrategy(explicit) {
	case core.DeployStrategyRelay, core.DeployStrategyERC4337:
		return core.DeployStrategy(explicit)
	}
	if hasBundler {
		return core.DeployStrategyERC4337
	}
	if hasRelayer {
		return core.DeployStrategyRelay
	}
	return core.DeployStrategyERC4337
}

func duration(env Env, key string, fallback time.Duration) (time.Duration, error) {
	raw := get(env, key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func get(env Env, key string) string {
	return strings.TrimSpace(env.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
