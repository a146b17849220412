package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/sigledger/internal/units"
)

const (
	defaultSkipURL     = "https://api.skip.build/v2/fungible/msgs_direct"
	defaultSkipTimeout = 10 * time.Second
	usdcMainnet        = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	nativeDenom        = "ethereum-native"
	mainnetChainID     = "1"
)

// SkipConfig configures the swap-quote HTTP adapter.
type SkipConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// Address is the swap address the API requires for chain 1; it only shapes the route.
	Address  string
	Slippage string
}

// SkipOracle quotes USDC -> native swaps through the Skip Go API.
type SkipOracle struct {
	cfg    SkipConfig
	client *http.Client
}

// NewSkipOracle builds an oracle backed by the Skip API.
func NewSkipOracle(cfg SkipConfig) *SkipOracle {
	if cfg.URL == "" {
		cfg.URL = defaultSkipURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSkipTimeout
	}
	if cfg.Slippage == "" {
		cfg.Slippage = "1"
	}
	return &SkipOracle{cfg: cfg, client: &http.Client{}}
}

type skipRequest struct {
	SourceAssetDenom    string            `json:"source_asset_denom"`
	SourceAssetChainID  string            `json:"source_asset_chain_id"`
	DestAssetDenom      string            `json:"dest_asset_denom"`
	DestAssetChainID    string            `json:"dest_asset_chain_id"`
	AmountIn            string            `json:"amount_in"`
	ChainIDsToAddresses map[string]string `json:"chain_ids_to_addresses"`
	SlippageTolerance   string            `json:"slippage_tolerance_percent"`
	SmartSwapOptions    map[string]bool   `json:"smart_swap_options"`
	AllowUnsafe         bool              `json:"allow_unsafe"`
}

type skipResponse struct {
	AmountOut string `json:"amount_out"`
	Route     struct {
		AmountOut string `json:"amount_out"`
	} `json:"route"`
}

// Quote asks the API how much native asset the fiat amount (as USDC) buys.
func (o *SkipOracle) Quote(ctx context.Context, fiat decimal.Decimal) (Quote, error) {
	amountIn := units.TruncateToMinor(fiat, units.StableDecimals)
	if amountIn.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: fiat amount below one cent", ErrUnavailable)
	}

	payload, err := json.Marshal(skipRequest{
		SourceAssetDenom:    usdcMainnet,
		SourceAssetChainID:  mainnetChainID,
		DestAssetDenom:      nativeDenom,
		DestAssetChainID:    mainnetChainID,
		AmountIn:            amountIn.String(),
		ChainIDsToAddresses: map[string]string{mainnetChainID: o.cfg.Address},
		SlippageTolerance:   o.cfg.Slippage,
		SmartSwapOptions:    map[string]bool{"evm_swaps": true},
	})
	if err != nil {
		return Quote{}, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, o.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Quote{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("%w: provider returned %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded skipResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Quote{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	out := decoded.AmountOut
	if out == "" {
		out = decoded.Route.AmountOut
	}
	amount, err := units.ParseMinor(out)
	if err != nil || amount.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: unusable amount_out %q", ErrUnavailable, out)
	}
	return Quote{AmountMinorUnits: amount, Route: "skip:" + amountIn.String()}, nil
}
