// utils/config.go
package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultModels is the model priority list used when GEMINI_MODELS is unset.
var DefaultModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.5-pro",
	"gemini-2.0-flash",
}

// DefaultDiscordGuildID is used when a Discord rule does not name its guild.
const DefaultDiscordGuildID = "1453315409787883647"

// Config is everything the service reads from the environment.
type Config struct {
	Port           string
	AllowedOrigins string
	LogLevel       string

	// Chain key (facts.ChainArbitrum, ...) -> RPC URL.
	RPCURLs         map[string]string
	ContractAddress string
	ContractChain   string
	RelayerKey      string

	GeminiKeys []string
	Models     []string
	MaxTurns   int
	// Per-request timeout handed to the model SDK's HTTP client.
	ModelTimeout time.Duration

	DiscordBotToken       string
	DiscordDefaultGuildID string
	DiscordClientID       string
	DiscordClientSecret   string
	DiscordRedirectURI    string
	FrontendURL           string

	EtherscanAPIKey string

	ProofStore        string // memory | postgres | redis
	ProofTTL          time.Duration
	RequireProofToken bool
	DatabaseURL       string
	RedisURL          string

	R2AccountID string
	R2AccessKey string
	R2Secret    string
	R2Bucket    string

	ClaimReceiptTimeout time.Duration
	ClaimLogFromBlock   uint64
	VerifyRateLimit     int
}

// rpcEnv maps chain keys to the environment variable holding their RPC URL.
var rpcEnv = map[string]string{
	"arbitrum":         "RPC_ARBITRUM",
	"ethereum":         "RPC_ETHEREUM",
	"base":             "RPC_BASE",
	"optimism":         "RPC_OPTIMISM",
	"polygon":          "RPC_POLYGON",
	"arbitrum_sepolia": "RPC_SEPOLIA_ARBITRUM",
	"ethereum_sepolia": "RPC_SEPOLIA_ETH",
}

// LoadConfig reads the environment. Call godotenv.Load first if a .env file is expected.
func LoadConfig() *Config {
	cfg := &Config{
		Port:                  envOr("PORT", "4000"),
		AllowedOrigins:        envOr("ALLOWED_ORIGINS", "*"),
		LogLevel:              envOr("LOG_LEVEL", "info"),
		RPCURLs:               map[string]string{},
		ContractAddress:       strings.TrimSpace(os.Getenv("STYLUS_CONTRACT_ADDRESS")),
		ContractChain:         envOr("CONTRACT_CHAIN", "arbitrum_sepolia"),
		RelayerKey:            strings.TrimPrefix(strings.TrimSpace(os.Getenv("PRIVATE_KEY")), "0x"),
		MaxTurns:              envInt("MAX_TURNS", 12),
		ModelTimeout:          envDuration("MODEL_TIMEOUT", 30*time.Second),
		DiscordBotToken:       os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordDefaultGuildID: envOr("DISCORD_DEFAULT_GUILD_ID", DefaultDiscordGuildID),
		DiscordClientID:       os.Getenv("DISCORD_CLIENT_ID"),
		DiscordClientSecret:   os.Getenv("DISCORD_CLIENT_SECRET"),
		DiscordRedirectURI:    os.Getenv("DISCORD_REDIRECT_URI"),
		FrontendURL:           envOr("FRONTEND_URL", "http://localhost:3000"),
		EtherscanAPIKey:       os.Getenv("ETHERSCAN_API_KEY"),
		ProofStore:            strings.ToLower(envOr("PROOF_STORE", "memory")),
		ProofTTL:              envDuration("PROOF_TTL", 15*time.Minute),
		RequireProofToken:     envBool("REQUIRE_PROOF_TOKEN", true),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		R2AccountID:           os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKey:           os.Getenv("R2_ACCESS_KEY_ID"),
		R2Secret:              os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:              os.Getenv("R2_BUCKET_NAME"),
		ClaimReceiptTimeout:   envDuration("CLAIM_RECEIPT_TIMEOUT", 60*time.Second),
		ClaimLogFromBlock:     uint64(envInt("CLAIM_LOG_FROM_BLOCK", 0)),
		VerifyRateLimit:       envInt("VERIFY_RATE_LIMIT", 20),
	}

	for chain, key := range rpcEnv {
		if url := strings.TrimSpace(os.Getenv(key)); url != "" {
			cfg.RPCURLs[chain] = url
		}
	}

	for _, key := range []string{"GEMINI_API_KEY", "GEMINI_API_KEY_2", "GEMINI_API_KEY_3"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			cfg.GeminiKeys = append(cfg.GeminiKeys, v)
		}
	}

	cfg.Models = DefaultModels
	if raw := os.Getenv("GEMINI_MODELS"); raw != "" {
		cfg.Models = splitList(raw)
	}

	return cfg
}

// ClaimEnabled reports whether the relayer path can run.
func (c *Config) ClaimEnabled() bool {
	return c.RelayerKey != "" && c.ContractAddress != ""
}

// R2Enabled reports whether audit archiving to R2 is configured.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKey != "" && c.R2Secret != "" && c.R2Bucket != ""
}

// AllowedOriginList splits ALLOWED_ORIGINS and trims each entry.
func (c *Config) AllowedOriginList() []string {
	return splitList(c.AllowedOrigins)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	Log.Debugf("[CONFIG] %s not set, using default %q", key, fallback)
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		Log.Warnf("⚠️ [CONFIG] %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		Log.Warnf("⚠️ [CONFIG] %s=%q is not a boolean, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		Log.Warnf("⚠️ [CONFIG] %s=%q is not a duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}
