package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gatekeeper-api/chain"
	"gatekeeper-api/facts"
	"gatekeeper-api/gatekeeper"
	"gatekeeper-api/handlers"
	"gatekeeper-api/middleware"
	"gatekeeper-api/models"
	"gatekeeper-api/services"
	"gatekeeper-api/utils"
	"gatekeeper-api/workers"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	cfg := utils.LoadConfig()
	if err := utils.InitLogger(cfg.LogLevel); err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer utils.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			utils.Log.Fatalf("❌ [DB] failed to connect to database: %v", err)
		}
		if err := db.AutoMigrate(&models.ProofSession{}, &models.VerificationAudit{}); err != nil {
			utils.Log.Fatalf("❌ [DB] failed to migrate database: %v", err)
		}
		utils.Log.Info("🗄️ [DB] Postgres connected and migrated")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			utils.Log.Fatalf("❌ [REDIS] invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	// --- Proof sessions ---
	proofs := services.NewProofIssuer(newProofStore(cfg, db, rdb), cfg.ProofTTL, nil)
	sched, err := services.StartSessionPurgeScheduler(proofs, time.Minute)
	if err != nil {
		utils.Log.Fatalf("❌ [SCHEDULER] failed to start: %v", err)
	}

	// --- Fact providers and the evaluator ---
	chains := facts.DialChains(ctx, cfg.RPCURLs)
	discord := facts.NewDiscordClient("", cfg.DiscordBotToken, nil)
	providers := &facts.Providers{
		Chains: chains,
		Geo:    facts.NewGeoClient("", nil),
		Time:   facts.NewTimeClient(facts.TimeEndpoints{}, nil),
	}
	if cfg.EtherscanAPIKey != "" {
		providers.Explorer = facts.NewEtherscanClient("", cfg.EtherscanAPIKey, nil)
	}
	if cfg.DiscordBotToken != "" {
		providers.Discord = discord
	}
	evaluator := gatekeeper.NewRuleEvaluator(
		gatekeeper.NewGenAIModel(utils.NewModelHTTPClient(cfg.ModelTimeout)),
		gatekeeper.NewToolRegistry(providers, cfg.DiscordDefaultGuildID),
		gatekeeper.EvaluatorConfig{Keys: cfg.GeminiKeys, Models: cfg.Models, MaxTurns: cfg.MaxTurns},
	)
	if len(cfg.GeminiKeys) == 0 {
		utils.Log.Warn("⚠️ [GATEKEEPER] No GEMINI_API_KEY configured, every verification will be rejected")
	}

	verifyService := services.NewVerifyService(evaluator, proofs, newAuditor(ctx, cfg, db), 0)

	// --- Claim vault ---
	var submitter services.ClaimSubmitter
	var status services.StatusReader
	if vault, client := dialVault(ctx, cfg); client != nil {
		status = chain.NewStatusReader(client, vault, cfg.ClaimLogFromBlock)
		if cfg.ClaimEnabled() {
			s, err := chain.NewClaimSubmitter(ctx, client, vault, cfg.RelayerKey, cfg.ClaimReceiptTimeout)
			if err != nil {
				utils.Log.Errorf("❌ [CLAIM] Relayer disabled: %v", err)
			} else {
				utils.Log.Infof("🔐 [CLAIM] Relayer %s ready for vault %s", s.Relayer().Hex(), vault.Hex())
				submitter = s
			}
		}
	}
	claimService := services.NewClaimService(submitter, status, proofs, cfg.RequireProofToken)

	discordAuth := services.NewDiscordAuthService(discord, facts.OAuthApp{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURI:  cfg.DiscordRedirectURI,
	}, cfg.FrontendURL)

	// --- Chain health ---
	heights := make(map[string]workers.HeightReader)
	for _, key := range chains.Keys() {
		if r, ok := chains.Reader(key); ok {
			heights[key] = r
		}
	}
	monitor := workers.NewChainHealthMonitor(heights, nil)
	go workers.PollChains(ctx, monitor, time.Minute)

	// --- HTTP ---
	app := fiber.New(fiber.Config{
		AppName:   "gatekeeper-api",
		BodyLimit: 1 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestContextMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOriginList(), ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: cfg.AllowedOrigins != "*",
		MaxAge:           86400,
	}))

	api := app.Group("/api")
	handlers.SetupVerifyRoutes(api, verifyService, cfg.VerifyRateLimit)
	handlers.SetupClaimRoutes(api, claimService)
	handlers.SetupAuthRoutes(api, discordAuth)
	handlers.SetupHealthRoutes(api, monitor)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			utils.Log.Errorf("❌ [HTTP] Server error: %v", err)
			stop()
		}
	}()

	utils.Log.Infof("✅ Gatekeeper running on http://localhost:%s", cfg.Port)
	utils.Log.Infof("✅ Proof store: %s (ttl %s, required=%t)", cfg.ProofStore, cfg.ProofTTL, cfg.RequireProofToken)
	utils.Log.Infof("✅ Claims enabled: %t", submitter != nil)
	utils.Log.Infof("✅ CORS configured for origins: %s", cfg.AllowedOrigins)

	<-ctx.Done()
	utils.Log.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		utils.Log.Warnf("⚠️ [HTTP] Shutdown: %v", err)
	}
	if err := sched.Shutdown(); err != nil {
		utils.Log.Warnf("⚠️ [SCHEDULER] Shutdown: %v", err)
	}
}

func newProofStore(cfg *utils.Config, db *gorm.DB, rdb *redis.Client) services.ProofStore {
	switch cfg.ProofStore {
	case "postgres":
		if db == nil {
			utils.Log.Fatal("❌ [PROOF] PROOF_STORE=postgres requires DATABASE_URL")
		}
		return services.NewGormProofStore(db, nil)
	case "redis":
		if rdb == nil {
			utils.Log.Fatal("❌ [PROOF] PROOF_STORE=redis requires REDIS_URL")
		}
		return services.NewRedisProofStore(rdb, nil)
	case "memory":
	default:
		utils.Log.Warnf("⚠️ [PROOF] Unknown PROOF_STORE %q, using memory", cfg.ProofStore)
	}
	return services.NewMemoryProofStore(nil)
}

func newAuditor(ctx context.Context, cfg *utils.Config, db *gorm.DB) services.Auditor {
	var archive services.Archiver
	if cfg.R2Enabled() {
		a, err := utils.NewR2Archive(ctx, cfg.R2AccountID, cfg.R2AccessKey, cfg.R2Secret, cfg.R2Bucket)
		if err != nil {
			utils.Log.Errorf("❌ [AUDIT] R2 archive disabled: %v", err)
		} else {
			archive = a
		}
	}
	if db == nil && archive == nil {
		return services.LogAuditor{}
	}
	return services.NewAuditService(db, archive, nil)
}

// dialVault connects to the contract chain. A nil client means /claim and
// /check-claim stay disabled.
func dialVault(ctx context.Context, cfg *utils.Config) (common.Address, *ethclient.Client) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		if cfg.ContractAddress != "" {
			utils.Log.Errorf("❌ [CLAIM] STYLUS_CONTRACT_ADDRESS %q is not an address", cfg.ContractAddress)
		}
		return common.Address{}, nil
	}
	key, ok := facts.ResolveChain(cfg.ContractChain)
	if !ok {
		utils.Log.Errorf("❌ [CLAIM] Unknown CONTRACT_CHAIN %q", cfg.ContractChain)
		return common.Address{}, nil
	}
	url := cfg.RPCURLs[key]
	if url == "" {
		utils.Log.Errorf("❌ [CLAIM] No RPC URL configured for %s", key)
		return common.Address{}, nil
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		utils.Log.Errorf("❌ [CLAIM] Failed to dial %s: %v", key, err)
		return common.Address{}, nil
	}
	return common.HexToAddress(cfg.ContractAddress), client
}
