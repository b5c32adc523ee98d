package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gatekeeper-api/utils"
)

const DefaultDiscordAPI = "https://discord.com/api/v10"

var ErrDiscordUnauthorized = errors.New("discord rejected the credentials")

// DiscordClient talks to the Discord REST API, with a bot token for guild member
// lookups and with client credentials for the OAuth code exchange.
type DiscordClient struct {
	baseURL  string
	botToken string
	http     *http.Client
	now      func() time.Time
}

func NewDiscordClient(baseURL, botToken string, httpClient *http.Client) *DiscordClient {
	if baseURL == "" {
		baseURL = DefaultDiscordAPI
	}
	if httpClient == nil {
		httpClient = utils.FactHTTPClient
	}
	return &DiscordClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		botToken: botToken,
		http:     httpClient,
		now:      time.Now,
	}
}

type guildMember struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Nick     string   `json:"nick"`
	Roles    []string `json:"roles"`
	JoinedAt string   `json:"joined_at"`
}

// DiscordMembership checks whether userID is in guildID and, when roleID is set,
// whether they hold that role.
func (p *Providers) DiscordMembership(ctx context.Context, userID, guildID, roleID string) Result {
	if p.Discord == nil || p.Discord.botToken == "" {
		return errResult("Discord checks are not configured (no bot token)")
	}
	if userID == "" {
		return errResult("no Discord user ID; the user must link Discord first")
	}
	if guildID == "" {
		return errResult("no Discord guild ID")
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.Discord.member(ctx, userID, guildID, roleID)
}

func (d *DiscordClient) member(ctx context.Context, userID, guildID, roleID string) Result {
	endpoint := fmt.Sprintf("%s/guilds/%s/members/%s", d.baseURL, url.PathEscape(guildID), url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errResult(err.Error())
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)

	resp, err := d.http.Do(req)
	if err != nil {
		utils.Log.Warnf("⚠️ [DISCORD] member lookup failed: %v", err)
		return errResult("Discord request failed: " + err.Error())
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Result{"is_member": false, "guild_id": guildID, "user_id": userID, "has_role": false}
	case http.StatusUnauthorized, http.StatusForbidden:
		return errResult("Discord bot is not authorized for guild " + guildID)
	default:
		return errResult(fmt.Sprintf("Discord returned HTTP %d", resp.StatusCode))
	}

	var m guildMember
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return errResult("failed to decode Discord member: " + err.Error())
	}

	out := Result{
		"is_member": true,
		"guild_id":  guildID,
		"user_id":   userID,
		"username":  m.User.Username,
		"roles":     m.Roles,
		"joined_at": m.JoinedAt,
	}
	if joined, err := time.Parse(time.RFC3339, m.JoinedAt); err == nil {
		out["tenure_days"] = daysBetween(joined, d.now())
	} else {
		out["tenure_days"] = -1
	}
	hasRole := false
	for _, r := range m.Roles {
		if r == roleID {
			hasRole = true
			break
		}
	}
	out["has_role"] = roleID != "" && hasRole
	if roleID != "" {
		out["role_id"] = roleID
	}
	return out
}

// OAuthApp holds the Discord application credentials for the login redirect flow.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// AuthorizeURL is where the browser is sent to grant the identify scope.
func (d *DiscordClient) AuthorizeURL(app OAuthApp) string {
	q := url.Values{}
	q.Set("client_id", app.ClientID)
	q.Set("redirect_uri", app.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "identify")
	return strings.TrimSuffix(d.baseURL, "/api/v10") + "/oauth2/authorize?" + q.Encode()
}

// ExchangeCode trades an OAuth code for the ID of the user who granted it.
func (d *DiscordClient) ExchangeCode(ctx context.Context, app OAuthApp, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", app.ClientID)
	form.Set("client_secret", app.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", app.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := d.doJSON(req, &token); err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token exchange: %w", ErrDiscordUnauthorized)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/users/@me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	var me struct {
		ID string `json:"id"`
	}
	if err := d.doJSON(req, &me); err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if me.ID == "" {
		return "", fmt.Errorf("fetch user: empty id")
	}
	return me.ID, nil
}

func (d *DiscordClient) doJSON(req *http.Request, v any) error {
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return ErrDiscordUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord returned HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
