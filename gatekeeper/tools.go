package gatekeeper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"gatekeeper-api/facts"
	"gatekeeper-api/models"
	"gatekeeper-api/utils"
)

const (
	ToolWalletStats       = "check_wallet_stats"
	ToolTokenBalance      = "check_token_balance"
	ToolNFTOwnership      = "check_nft_ownership"
	ToolDiscordMembership = "check_discord_membership"
	ToolGeoSybil          = "check_geo_sybil"
	ToolTime              = "check_time"
)

// Tool is one entry of the closed tool set.
type Tool interface {
	Schema() ToolSchema
	// Normalize rewrites model-supplied arguments with trusted request context.
	Normalize(args map[string]any, uc models.UserContext, rule string) map[string]any
	Run(ctx context.Context, args map[string]any) facts.Result
}

// ToolRegistry maps tool names to implementations. It is built once and read-only.
type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

// NewToolRegistry registers the standard tools over p.
func NewToolRegistry(p *facts.Providers, defaultGuildID string) *ToolRegistry {
	if defaultGuildID == "" {
		defaultGuildID = utils.DefaultDiscordGuildID
	}
	return NewToolRegistryOf(
		walletStatsTool{p},
		tokenBalanceTool{p},
		nftOwnershipTool{p},
		discordTool{p: p, defaultGuild: defaultGuildID},
		geoSybilTool{p},
		timeTool{p},
	)
}

// NewToolRegistryOf registers an explicit tool list.
func NewToolRegistryOf(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Schema().Name
		if _, dup := r.tools[name]; dup {
			panic("gatekeeper: duplicate tool " + name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r
}

// Schemas returns the catalog in registration order.
func (r *ToolRegistry) Schemas() []ToolSchema {
	out := make([]ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Schema())
	}
	return out
}

func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Execute normalizes and runs one call. It never fails: an unknown tool yields
// {"error": "unknown tool"} so the model can recover and the fallback counts it.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall, uc models.UserContext, rule string) models.ToolCallRecord {
	args := copyArgs(call.Args)
	t, ok := r.tools[call.Name]
	if !ok {
		utils.Log.Warnf("⚠️ [TOOLS] model requested unknown tool %q", call.Name)
		return models.ToolCallRecord{
			ToolName: call.Name,
			Args:     args,
			Result:   facts.Result{"error": "unknown tool", "tool": call.Name},
		}
	}

	args = t.Normalize(args, uc, rule)
	res := t.Run(ctx, args)
	if res == nil {
		res = facts.Result{"error": "tool returned no result"}
	}
	utils.Log.Debugf("[TOOLS] %s args=%v result=%v", call.Name, args, res)
	return models.ToolCallRecord{ToolName: call.Name, Args: args, Result: res}
}

func copyArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func argFloat(args map[string]any, key string) *float64 {
	switch v := args[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}

// injectAddress pins the subject wallet to the claimer. The model only ever sees
// the claimer's address, so any other value is a hallucination or an injection.
func injectAddress(args map[string]any, uc models.UserContext) {
	if uc.Address != "" {
		if got := argString(args, "address"); got != "" && !strings.EqualFold(got, uc.Address) {
			utils.Log.Warnf("⚠️ [TOOLS] replacing model-supplied address %s with claimer address", got)
		}
		args["address"] = uc.Address
	}
}

func injectCoords(args map[string]any, uc models.UserContext) {
	if uc.HasCoords() {
		args["latitude"] = *uc.Latitude
		args["longitude"] = *uc.Longitude
	}
}

var (
	addressParam = ToolParam{Name: "address", Type: "string", Description: "Wallet address (0x...). Defaults to the claimer's wallet."}
	chainParam   = ToolParam{Name: "chain", Type: "string", Description: "Chain name: ethereum, arbitrum, base, optimism, polygon, arbitrum_sepolia, ethereum_sepolia."}
	latParam     = ToolParam{Name: "latitude", Type: "number", Description: "Latitude in degrees."}
	lonParam     = ToolParam{Name: "longitude", Type: "number", Description: "Longitude in degrees."}
)

type walletStatsTool struct{ p *facts.Providers }

func (walletStatsTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        ToolWalletStats,
		Description: "Native balance, transaction count, contract status and history (wallet age in days, days since last activity, lifetime gas spent in ETH, largest outbound transfer in ETH). History fields are -1 or \"0\" when unavailable.",
		Params:      []ToolParam{addressParam, chainParam},
		Required:    []string{"address"},
	}
}

func (walletStatsTool) Normalize(args map[string]any, uc models.UserContext, _ string) map[string]any {
	injectAddress(args, uc)
	return args
}

func (t walletStatsTool) Run(ctx context.Context, args map[string]any) facts.Result {
	return t.p.WalletStats(ctx, argString(args, "address"), argString(args, "chain"))
}

type tokenBalanceTool struct{ p *facts.Providers }

func (tokenBalanceTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        ToolTokenBalance,
		Description: "ERC-20 balance of a token symbol (USDC, USDT, DAI, WETH, LINK, UNI, ARB, OP) or token contract address on one chain. Returns the human-readable balance.",
		Params: []ToolParam{
			addressParam,
			{Name: "symbol", Type: "string", Description: "Token symbol or contract address."},
			chainParam,
		},
		Required: []string{"address", "symbol"},
	}
}

func (tokenBalanceTool) Normalize(args map[string]any, uc models.UserContext, _ string) map[string]any {
	injectAddress(args, uc)
	if argString(args, "symbol") == "" {
		if addr := argString(args, "tokenAddress"); common.IsHexAddress(addr) {
			args["symbol"] = addr
		}
	}
	return args
}

func (t tokenBalanceTool) Run(ctx context.Context, args map[string]any) facts.Result {
	return t.p.TokenBalance(ctx, argString(args, "address"), argString(args, "symbol"), argString(args, "chain"))
}

type nftOwnershipTool struct{ p *facts.Providers }

func (nftOwnershipTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        ToolNFTOwnership,
		Description: "Whether the wallet owns at least one NFT of a collection. Pass a known collectionName (its chain is implied) or contractAddress together with chain.",
		Params: []ToolParam{
			addressParam,
			{Name: "collectionName", Type: "string", Description: "Collection name, e.g. \"Bored Ape Yacht Club\"."},
			{Name: "contractAddress", Type: "string", Description: "ERC-721 contract address when the collection is not known by name."},
			chainParam,
		},
		Required: []string{"address"},
	}
}

func (nftOwnershipTool) Normalize(args map[string]any, uc models.UserContext, _ string) map[string]any {
	injectAddress(args, uc)
	return args
}

func (t nftOwnershipTool) Run(ctx context.Context, args map[string]any) facts.Result {
	return t.p.NFTOwnership(ctx,
		argString(args, "address"),
		argString(args, "collectionName"),
		argString(args, "contractAddress"),
		argString(args, "chain"),
	)
}

// snowflakeRe matches Discord IDs.
var snowflakeRe = regexp.MustCompile(`\b\d{17,19}\b`)

var roleMentionRe = regexp.MustCompile(`(?i)\brole\b`)

type discordTool struct {
	p            *facts.Providers
	defaultGuild string
}

func (discordTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        ToolDiscordMembership,
		Description: "Whether the claimer is a member of a Discord server, their roles, join date and tenure in days. Set roleId to also check a role.",
		Params: []ToolParam{
			{Name: "userId", Type: "string", Description: "Discord user ID. Defaults to the claimer's linked account."},
			{Name: "guildId", Type: "string", Description: "Discord server (guild) ID."},
			{Name: "roleId", Type: "string", Description: "Optional role ID the user must hold."},
		},
	}
}

// Normalize takes the user from the linked account and the guild from the rule.
// The first snowflake in the rule is the guild; a second one is the role when the
// rule mentions a role.
func (t discordTool) Normalize(args map[string]any, uc models.UserContext, rule string) map[string]any {
	args["userId"] = uc.DiscordID

	ids := snowflakeRe.FindAllString(rule, -1)
	guild := argString(args, "guildId")
	if !containsString(ids, guild) {
		guild = ""
	}
	if guild == "" && len(ids) > 0 {
		guild = ids[0]
	}
	if guild == "" {
		guild = t.defaultGuild
	}
	args["guildId"] = guild

	role := argString(args, "roleId")
	if role != "" && !snowflakeRe.MatchString(role) {
		role = ""
	}
	if role == "" && roleMentionRe.MatchString(rule) {
		for _, id := range ids {
			if id != guild {
				role = id
				break
			}
		}
	}
	if role != "" {
		args["roleId"] = role
	} else {
		delete(args, "roleId")
	}
	return args
}

func (t discordTool) Run(ctx context.Context, args map[string]any) facts.Result {
	return t.p.DiscordMembership(ctx, argString(args, "userId"), argString(args, "guildId"), argString(args, "roleId"))
}

func containsString(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type geoSybilTool struct{ p *facts.Providers }

func (geoSybilTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        ToolGeoSybil,
		Description: "checkType \"geo\": the claimer's country from their coordinates and whether it is sanctioned (is_blocked). checkType \"sybil\": a 0-100 humanity score for the wallet (is_sybil when below 30).",
		Params: []ToolParam{
			{Name: "checkType", Type: "string", Description: "\"geo\" or \"sybil\"."},
			latParam,
			lonParam,
			addressParam,
			chainParam,
		},
		Required: []string{"checkType"},
	}
}

func (geoSybilTool) Normalize(args map[string]any, uc models.UserContext, _ string) map[string]any {
	injectAddress(args, uc)
	injectCoords(args, uc)
	return args
}

func (t geoSybilTool) Run(ctx context.Context, args map[string]any) facts.Result {
	return t.p.GeoSybil(ctx,
		argString(args, "checkType"),
		argFloat(args, "latitude"),
		argFloat(args, "longitude"),
		argString(args, "address"),
		argString(args, "chain"),
	)
}

type timeTool struct{ p *facts.Providers }

func (timeTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        ToolTime,
		Description: "Current local and UTC time at the claimer's location or at a named city.",
		Params: []ToolParam{
			latParam,
			lonParam,
			{Name: "cityName", Type: "string", Description: "City name, used when no coordinates are known."},
		},
	}
}

// Normalize uses the claimer's position unless the model asked about a named city.
func (timeTool) Normalize(args map[string]any, uc models.UserContext, _ string) map[string]any {
	if argString(args, "cityName") != "" {
		delete(args, "latitude")
		delete(args, "longitude")
		return args
	}
	injectCoords(args, uc)
	return args
}

func (t timeTool) Run(ctx context.Context, args map[string]any) facts.Result {
	return t.p.LocalTime(ctx, argFloat(args, "latitude"), argFloat(args, "longitude"), argString(args, "cityName"))
}
