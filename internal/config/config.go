package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fintank/internal/ocean"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	WalletAuthURL   string
	WalletAuthKey   string
	AdminSecretHash string
	ServiceToken    string
	AdminUserID     string
	DepositAddress  string

	RequiredConfirmations int
	Policy                ocean.Policy
}

type WorkerConfig struct {
	DatabaseURL           string
	ChainIndexerURL       string
	ChainIndexerKey       string
	DepositAddress        string
	RequiredConfirmations int
	AdminUserID           string
	Policy                ocean.Policy

	SyncEvery     time.Duration
	DispatchEvery time.Duration
	CycleEvery    time.Duration
	AnnounceEvery time.Duration

	DiscordToken   string
	DiscordChannel string
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("FINTANK_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		WalletAuthURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("WALLET_AUTH_URL")), "/"),
		WalletAuthKey:   strings.TrimSpace(os.Getenv("WALLET_AUTH_KEY")),
		AdminSecretHash: strings.TrimSpace(os.Getenv("FINTANK_ADMIN_SECRET_HASH")),
		ServiceToken:    strings.TrimSpace(os.Getenv("FINTANK_SERVICE_TOKEN")),
		AdminUserID:     envDefault("FINTANK_ADMIN_USER_ID", "admin"),
		DepositAddress:  strings.TrimSpace(os.Getenv("FINTANK_DEPOSIT_ADDRESS")),

		RequiredConfirmations: envIntDefault("FINTANK_REQUIRED_CONFIRMATIONS", 3),
		Policy:                envPolicy(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WalletAuthURL == "" {
		return cfg, fmt.Errorf("WALLET_AUTH_URL is required")
	}
	if cfg.WalletAuthKey == "" {
		return cfg, fmt.Errorf("WALLET_AUTH_KEY is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ChainIndexerURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("CHAIN_INDEXER_URL")), "/"),
		ChainIndexerKey:       strings.TrimSpace(os.Getenv("CHAIN_INDEXER_KEY")),
		DepositAddress:        strings.TrimSpace(os.Getenv("FINTANK_DEPOSIT_ADDRESS")),
		RequiredConfirmations: envIntDefault("FINTANK_REQUIRED_CONFIRMATIONS", 3),
		AdminUserID:           envDefault("FINTANK_ADMIN_USER_ID", "admin"),
		Policy:                envPolicy(),
		SyncEvery:             envDurationDefault("FINTANK_SYNC_EVERY", time.Minute),
		DispatchEvery:         envDurationDefault("FINTANK_DISPATCH_EVERY", 30*time.Second),
		CycleEvery:            envDurationDefault("FINTANK_CYCLE_EVERY", time.Minute),
		AnnounceEvery:         envDurationDefault("FINTANK_ANNOUNCE_EVERY", 15*time.Second),
		DiscordToken:          strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		DiscordChannel:        strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ChainIndexerURL == "" {
		return cfg, fmt.Errorf("CHAIN_INDEXER_URL is required")
	}
	if cfg.DepositAddress == "" {
		return cfg, fmt.Errorf("FINTANK_DEPOSIT_ADDRESS is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("FIN_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

// envPolicy picks the timer preset. Settlement rates never vary by
// environment, only the pacing does.
func envPolicy() ocean.Policy {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("FINTANK_TIMERS"))) {
	case "development", "dev":
		return ocean.DevelopmentPolicy()
	default:
		return ocean.ProductionPolicy()
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
