package gatekeeper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper-api/models"
)

const (
	guildA = "123456789012345678"
	roleB  = "987654321098765432"
)

func TestDiscordNormalize(t *testing.T) {
	uc := models.UserContext{DiscordID: "111111111111111111"}
	tool := discordTool{defaultGuild: "555555555555555555"}

	t.Run("user always comes from the linked account", func(t *testing.T) {
		args := tool.Normalize(map[string]any{"userId": "999999999999999999"}, uc, "Member of "+guildA)
		assert.Equal(t, uc.DiscordID, args["userId"])
	})

	t.Run("unlisted guild is replaced by the rule's first id", func(t *testing.T) {
		args := tool.Normalize(map[string]any{"guildId": "444444444444444444"}, uc, "Must be in server "+guildA)
		assert.Equal(t, guildA, args["guildId"])
	})

	t.Run("listed guild is kept", func(t *testing.T) {
		rule := "Member of " + roleB + " or " + guildA
		args := tool.Normalize(map[string]any{"guildId": guildA}, uc, rule)
		assert.Equal(t, guildA, args["guildId"])
	})

	t.Run("default guild when rule has no id", func(t *testing.T) {
		args := tool.Normalize(map[string]any{}, uc, "Must be in our Discord")
		assert.Equal(t, "555555555555555555", args["guildId"])
		assert.NotContains(t, args, "roleId")
	})

	t.Run("second id becomes the role when the rule mentions a role", func(t *testing.T) {
		rule := "Must be in " + guildA + " with role " + roleB
		args := tool.Normalize(map[string]any{}, uc, rule)
		assert.Equal(t, guildA, args["guildId"])
		assert.Equal(t, roleB, args["roleId"])
	})

	t.Run("non-snowflake role is dropped", func(t *testing.T) {
		args := tool.Normalize(map[string]any{"roleId": "OG"}, uc, "Member of "+guildA)
		assert.NotContains(t, args, "roleId")
	})
}

func TestAddressIsPinnedToClaimer(t *testing.T) {
	uc := models.UserContext{Address: "0xAbC0000000000000000000000000000000000001"}
	for _, tool := range []Tool{walletStatsTool{}, tokenBalanceTool{}, nftOwnershipTool{}, geoSybilTool{}} {
		args := tool.Normalize(map[string]any{"address": "0xdead00000000000000000000000000000000beef"}, uc, "")
		assert.Equal(t, uc.Address, args["address"], tool.Schema().Name)
	}
}

func TestTokenNormalize_ContractAlias(t *testing.T) {
	args := tokenBalanceTool{}.Normalize(map[string]any{
		"tokenAddress": "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d",
	}, models.UserContext{}, "")
	assert.Equal(t, "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d", args["symbol"])
}

func TestTimeNormalize(t *testing.T) {
	lat, lon := 48.85, 2.35
	uc := models.UserContext{Latitude: &lat, Longitude: &lon}

	args := timeTool{}.Normalize(map[string]any{}, uc, "")
	assert.Equal(t, lat, args["latitude"])
	assert.Equal(t, lon, args["longitude"])

	args = timeTool{}.Normalize(map[string]any{"cityName": "Tokyo", "latitude": 1.0}, uc, "")
	assert.Equal(t, "Tokyo", args["cityName"])
	assert.NotContains(t, args, "latitude")
	assert.NotContains(t, args, "longitude")
}

func TestGeoNormalize_DeniedLocationIsAbsent(t *testing.T) {
	zero := 0.0
	uc := models.UserContext{Latitude: &zero, Longitude: &zero}
	args := geoSybilTool{}.Normalize(map[string]any{"checkType": "geo"}, uc, "")
	assert.NotContains(t, args, "latitude")
}

func TestRegistry(t *testing.T) {
	r := NewToolRegistry(nil, "")
	schemas := r.Schemas()
	require.Len(t, schemas, 6)
	assert.Equal(t, ToolWalletStats, schemas[0].Name)
	assert.True(t, r.Has(ToolTime))
	assert.False(t, r.Has("check_weather"))

	rec := r.Execute(context.Background(), ToolCall{Name: "check_weather", Args: map[string]any{"city": "Oslo"}}, claimer, "")
	assert.Equal(t, "unknown tool", rec.Result["error"])
	assert.Equal(t, "Oslo", rec.Args["city"])

	assert.Panics(t, func() {
		NewToolRegistryOf(stubTool{name: "x"}, stubTool{name: "x"})
	})
}

func TestArgFloat(t *testing.T) {
	assert.Equal(t, 1.5, *argFloat(map[string]any{"v": 1.5}, "v"))
	assert.Equal(t, 2.0, *argFloat(map[string]any{"v": " 2 "}, "v"))
	assert.Nil(t, argFloat(map[string]any{"v": "north"}, "v"))
	assert.Nil(t, argFloat(map[string]any{}, "v"))
}
