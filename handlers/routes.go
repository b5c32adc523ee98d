// handlers/routes.go
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"gatekeeper-api/services"
	"gatekeeper-api/utils"
	"gatekeeper-api/workers"
)

// SetupVerifyRoutes mounts /verify behind a per-IP limiter; every call can cost
// several model round trips.
func SetupVerifyRoutes(api fiber.Router, verify *services.VerifyService, perMinute int) {
	handlers := []fiber.Handler{}
	if perMinute > 0 {
		handlers = append(handlers, limiter.New(limiter.Config{
			Max:        perMinute,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				utils.Log.Warnf("🚫 [LIMITER] /verify rate limit hit by %s", c.IP())
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many verification attempts, slow down"})
			},
		}))
	}
	handlers = append(handlers, verify.Verify)
	api.Post("/verify", handlers...)
}

func SetupClaimRoutes(api fiber.Router, claims *services.ClaimService) {
	api.Post("/claim", claims.Claim)
	api.Get("/check-claim/:dropId", claims.CheckClaim)
}

func SetupAuthRoutes(api fiber.Router, discord *services.DiscordAuthService) {
	auth := api.Group("/auth")
	auth.Get("/discord", discord.Login)
	auth.Get("/discord/callback", discord.Callback)
}

// SetupHealthRoutes reports the RPC heights seen by the health worker. monitor
// may be nil when no chain is configured.
func SetupHealthRoutes(api fiber.Router, monitor *workers.ChainHealthMonitor) {
	api.Get("/health", func(c *fiber.Ctx) error {
		chains := []workers.ChainHealth{}
		status := "ok"
		if monitor != nil {
			chains = monitor.Snapshot()
			if !monitor.Healthy() {
				status = "degraded"
			}
		}
		return c.JSON(fiber.Map{"status": status, "chains": chains})
	})
}
