package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"gatekeeper-api/utils"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	geoUserAgent        = "gatekeeper-api/1.0 (quest eligibility checks)"
)

// BlockedCountries is the sanctions deny-list, by ISO 3166-1 alpha-2 code.
var BlockedCountries = map[string]bool{
	"KP": true,
	"IR": true,
	"SY": true,
	"CU": true,
}

// GeoClient reverse-geocodes coordinates via a Nominatim-compatible API.
type GeoClient struct {
	baseURL string
	http    *http.Client
}

func NewGeoClient(baseURL string, httpClient *http.Client) *GeoClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if httpClient == nil {
		httpClient = utils.FactHTTPClient
	}
	return &GeoClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Place is the subset of a reverse-geocode result the checks use.
type Place struct {
	Country     string
	CountryCode string
	City        string
}

func (g *GeoClient) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("zoom", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	// Nominatim's usage policy requires an identifying User-Agent.
	req.Header.Set("User-Agent", geoUserAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocode returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		Error   string `json:"error"`
		Address struct {
			Country     string `json:"country"`
			CountryCode string `json:"country_code"`
			City        string `json:"city"`
			Town        string `json:"town"`
			Village     string `json:"village"`
			State       string `json:"state"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode reverse geocode: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("reverse geocode: %s", body.Error)
	}

	city := body.Address.City
	for _, alt := range []string{body.Address.Town, body.Address.Village, body.Address.State} {
		if city != "" {
			break
		}
		city = alt
	}
	return &Place{
		Country:     body.Address.Country,
		CountryCode: strings.ToUpper(body.Address.CountryCode),
		City:        city,
	}, nil
}

// GeoSybil runs either a location check ("geo") or a sybil score ("sybil").
func (p *Providers) GeoSybil(ctx context.Context, checkType string, lat, lon *float64, address, chain string) Result {
	switch strings.ToLower(strings.TrimSpace(checkType)) {
	case "geo", "location", "country":
		return p.geoCheck(ctx, lat, lon)
	case "sybil", "bot", "human":
		return p.sybilCheck(ctx, address, chain)
	default:
		return errResult("checkType must be \"geo\" or \"sybil\"")
	}
}

func geoSoftFail(note string) Result {
	return Result{
		"country":      "Unknown",
		"country_code": "",
		"is_blocked":   true,
		"check_failed": true,
		"note":         note,
	}
}

func (p *Providers) geoCheck(ctx context.Context, lat, lon *float64) Result {
	if lat == nil || lon == nil || (*lat == 0 && *lon == 0) {
		return geoSoftFail("no coordinates supplied; location access may be denied")
	}
	if p.Geo == nil {
		return geoSoftFail("geolocation is not configured")
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	place, err := p.Geo.Reverse(ctx, *lat, *lon)
	if err != nil {
		utils.Log.Warnf("⚠️ [GEO] reverse geocode failed: %v", err)
		return geoSoftFail("location lookup failed: " + err.Error())
	}
	return Result{
		"country":      place.Country,
		"country_code": place.CountryCode,
		"city":         place.City,
		"is_blocked":   BlockedCountries[place.CountryCode],
	}
}

// SybilScore rates how human a wallet looks: up to 60 points for transaction count
// (saturating at 50) plus up to 40 for native balance (saturating at 0.1 ETH).
func SybilScore(txCount uint64, balanceEth float64) int {
	txPts := float64(txCount) / 50 * 60
	if txPts > 60 {
		txPts = 60
	}
	balPts := balanceEth / 0.1 * 40
	if balPts > 40 {
		balPts = 40
	}
	if balPts < 0 {
		balPts = 0
	}
	return int(math.Round(txPts + balPts))
}

const sybilThreshold = 30

func (p *Providers) sybilCheck(ctx context.Context, address, chain string) Result {
	fail := func(note string) Result {
		return Result{"score": 0, "is_sybil": true, "check_failed": true, "note": note}
	}
	if !common.IsHexAddress(address) {
		return fail("invalid address: " + address)
	}
	key, r, res := p.reader(chain)
	if res != nil {
		return fail(fmt.Sprint(res["error"]))
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	owner := common.HexToAddress(address)
	nonce, err := r.NonceAt(ctx, owner, nil)
	if err != nil {
		return fail("RPC failed for " + key + ": " + err.Error())
	}
	bal, err := r.BalanceAt(ctx, owner, nil)
	if err != nil {
		return fail("RPC failed for " + key + ": " + err.Error())
	}

	eth := weiToEther(bal)
	score := SybilScore(nonce, eth)
	return Result{
		"score":       score,
		"is_sybil":    score < sybilThreshold,
		"tx_count":    nonce,
		"balance_eth": eth,
		"chain":       key,
	}
}
