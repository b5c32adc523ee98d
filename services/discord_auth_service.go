package services

import (
	"context"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"gatekeeper-api/facts"
	"gatekeeper-api/utils"
)

// DiscordOAuth is satisfied by *facts.DiscordClient.
type DiscordOAuth interface {
	AuthorizeURL(app facts.OAuthApp) string
	ExchangeCode(ctx context.Context, app facts.OAuthApp, code string) (string, error)
}

// DiscordAuthService links a Discord account to the claim page by redirecting back
// with the user's ID.
type DiscordAuthService struct {
	client      DiscordOAuth
	app         facts.OAuthApp
	frontendURL string
}

func NewDiscordAuthService(client DiscordOAuth, app facts.OAuthApp, frontendURL string) *DiscordAuthService {
	return &DiscordAuthService{client: client, app: app, frontendURL: frontendURL}
}

func (s *DiscordAuthService) enabled() bool {
	return s.client != nil && s.app.ClientID != "" && s.app.ClientSecret != "" && s.app.RedirectURI != ""
}

// Login handles GET /api/auth/discord.
func (s *DiscordAuthService) Login(c *fiber.Ctx) error {
	if !s.enabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Discord login is not configured"})
	}
	return c.Redirect(s.client.AuthorizeURL(s.app), fiber.StatusFound)
}

// Callback handles GET /api/auth/discord/callback.
func (s *DiscordAuthService) Callback(c *fiber.Ctx) error {
	if !s.enabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Discord login is not configured"})
	}
	code := c.Query("code")
	if code == "" {
		return c.Redirect(s.frontendWith("error", "missing_code"), fiber.StatusFound)
	}

	id, err := s.client.ExchangeCode(c.UserContext(), s.app, code)
	if err != nil {
		utils.Log.Warnf("⚠️ [DISCORD] OAuth exchange failed: %v", err)
		return c.Redirect(s.frontendWith("error", "discord_auth_failed"), fiber.StatusFound)
	}
	utils.Log.Infof("🔑 [DISCORD] Linked Discord user %s", id)
	return c.Redirect(s.frontendWith("discordId", id), fiber.StatusFound)
}

func (s *DiscordAuthService) frontendWith(key, value string) string {
	u, err := url.Parse(s.frontendURL)
	if err != nil {
		return s.frontendURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
