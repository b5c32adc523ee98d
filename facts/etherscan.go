package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gatekeeper-api/utils"
)

// DefaultExplorerURL is the Etherscan v2 multichain endpoint.
const DefaultExplorerURL = "https://api.etherscan.io/v2/api"

// EtherscanClient reads account history from an Etherscan v2-compatible explorer.
// The free tier allows five calls per second per key, shared by every request.
type EtherscanClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func NewEtherscanClient(baseURL, apiKey string, httpClient *http.Client) *EtherscanClient {
	if baseURL == "" {
		baseURL = DefaultExplorerURL
	}
	if httpClient == nil {
		httpClient = utils.FactHTTPClient
	}
	return &EtherscanClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		now:     time.Now,
	}
}

// WalletHistory is derived from the account's normal transaction list.
type WalletHistory struct {
	TxCount            int
	WalletAgeDays      int
	DaysSinceActive    int
	LifetimeGasWei     *big.Int
	LargestOutboundWei *big.Int
}

type explorerTx struct {
	TimeStamp string `json:"timeStamp"`
	From      string `json:"from"`
	Value     string `json:"value"`
	GasUsed   string `json:"gasUsed"`
	GasPrice  string `json:"gasPrice"`
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// History fetches up to 10000 transactions of address on chainID, oldest first.
func (e *EtherscanClient) History(ctx context.Context, chainID int64, address string) (*WalletHistory, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("explorer rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("chainid", strconv.FormatInt(chainID, 10))
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", "1")
	q.Set("offset", "10000")
	q.Set("sort", "asc")
	q.Set("apikey", e.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned HTTP %d", resp.StatusCode)
	}

	var body explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode explorer response: %w", err)
	}

	var txs []explorerTx
	if body.Status != "1" {
		// "No transactions found" is a valid, empty history.
		if !strings.Contains(strings.ToLower(body.Message), "no transactions") {
			var detail string
			_ = json.Unmarshal(body.Result, &detail)
			return nil, fmt.Errorf("explorer error: %s %s", body.Message, detail)
		}
	} else if err := json.Unmarshal(body.Result, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode explorer transactions: %w", err)
	}

	return summarizeHistory(txs, address, e.now()), nil
}

func summarizeHistory(txs []explorerTx, address string, now time.Time) *WalletHistory {
	h := &WalletHistory{
		TxCount:            len(txs),
		DaysSinceActive:    -1,
		LifetimeGasWei:     new(big.Int),
		LargestOutboundWei: new(big.Int),
	}
	if len(txs) == 0 {
		return h
	}

	var first, last int64
	for i, tx := range txs {
		ts, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
		if i == 0 || ts < first {
			first = ts
		}
		if ts > last {
			last = ts
		}
		if !strings.EqualFold(tx.From, address) {
			continue
		}
		gasUsed, okUsed := new(big.Int).SetString(tx.GasUsed, 10)
		gasPrice, okPrice := new(big.Int).SetString(tx.GasPrice, 10)
		if okUsed && okPrice {
			h.LifetimeGasWei.Add(h.LifetimeGasWei, gasUsed.Mul(gasUsed, gasPrice))
		}
		if v, ok := new(big.Int).SetString(tx.Value, 10); ok && v.Cmp(h.LargestOutboundWei) > 0 {
			h.LargestOutboundWei = v
		}
	}

	h.WalletAgeDays = daysBetween(time.Unix(first, 0), now)
	h.DaysSinceActive = daysBetween(time.Unix(last, 0), now)
	return h
}

func daysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
