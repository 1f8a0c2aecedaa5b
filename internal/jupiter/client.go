// =============================================
// File: internal/jupiter/client.go
// =============================================
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/spl-fleet/internal/swap"
)

const (
	// DefaultBaseURL is the aggregator endpoint.
	DefaultBaseURL = "https://lite-api.jup.ag/swap/v1"

	// Per-call timeouts: quoting is cheap, executing waits for on-chain
	// confirmation.
	DefaultQuoteTimeout   = 10 * time.Second
	DefaultExecuteTimeout = 60 * time.Second

	// DefaultStaleAfter is how long a fetched quote stays usable before the
	// client refuses to execute against it.
	DefaultStaleAfter = 10 * time.Second

	// ServiceFeeRate is the fixed fee ratio applied when fee collection is
	// enabled (0.1%).
	ServiceFeeRate = 0.001
)

// Config configures the client.
type Config struct {
	BaseURL          string
	QuoteTimeout     time.Duration
	ExecuteTimeout   time.Duration
	StaleAfter       time.Duration
	MaxRetries       int // transport-level retries per call
	OnlyDirectRoutes bool
	HTTPClient       *http.Client
}

// Client implements swap.Dex against the remote aggregator. It is safe for
// concurrent use; quotes are held in an internal route table keyed by the
// opaque route id handed to callers.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	logger           *zap.Logger
	quoteTimeout     time.Duration
	executeTimeout   time.Duration
	staleAfter       time.Duration
	maxRetries       int
	onlyDirectRoutes bool

	mu     sync.Mutex
	routes map[string]routeEntry
	tokens map[string]swap.Token
}

type routeEntry struct {
	resp    *QuoteResponse
	fetched time.Time
}

// NewClient creates an aggregator client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = DefaultQuoteTimeout
	}
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = DefaultExecuteTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.ExecuteTimeout}
	}
	return &Client{
		httpClient:       httpClient,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		logger:           logger.Named("jupiter"),
		quoteTimeout:     cfg.QuoteTimeout,
		executeTimeout:   cfg.ExecuteTimeout,
		staleAfter:       cfg.StaleAfter,
		maxRetries:       cfg.MaxRetries,
		onlyDirectRoutes: cfg.OnlyDirectRoutes,
		routes:           make(map[string]routeEntry),
	}
}

// SupportedTokens fetches the aggregator's symbol table, cached for the run.
func (c *Client) SupportedTokens(ctx context.Context) (map[string]swap.Token, error) {
	c.mu.Lock()
	if c.tokens != nil {
		cached := c.tokens
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	body, err := c.do(ctx, http.MethodGet, "/tokens", nil, c.quoteTimeout)
	if err != nil {
		return nil, err
	}

	var list []TokenInfo
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, swap.WrapError(swap.KindTransport, err, "malformed token list")
	}

	tokens := make(map[string]swap.Token, len(list))
	for _, t := range list {
		tokens[strings.ToUpper(t.Symbol)] = swap.Token{Symbol: t.Symbol, Mint: t.Mint, Decimals: t.Decimals}
	}

	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()
	return tokens, nil
}

// Quote fetches a swap quote and registers it in the route table. The
// returned route id ages out after StaleAfter.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*swap.Quote, error) {
	query := url.Values{}
	query.Set("inputMint", inputMint)
	query.Set("outputMint", outputMint)
	query.Set("amount", strconv.FormatUint(amount, 10))
	query.Set("slippageBps", strconv.Itoa(slippageBps))
	query.Set("platformFeeBps", "0")
	if c.onlyDirectRoutes {
		query.Set("onlyDirectRoutes", "true")
	}

	body, err := c.do(ctx, http.MethodGet, "/quote?"+query.Encode(), nil, c.quoteTimeout)
	if err != nil {
		return nil, err
	}

	var resp QuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, swap.WrapError(swap.KindTransport, err, "malformed quote response")
	}

	quote, err := c.toQuote(&resp)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for id, e := range c.routes {
		if time.Since(e.fetched) > c.staleAfter {
			delete(c.routes, id)
		}
	}
	c.routes[quote.RouteID] = routeEntry{resp: &resp, fetched: quote.FetchedAt}
	c.mu.Unlock()

	c.logger.Debug("Quote fetched",
		zap.String("route_id", quote.RouteID),
		zap.Uint64("in", quote.InAmount),
		zap.Uint64("out", quote.OutAmount),
		zap.Int64("impact_bps", quote.PriceImpactBps))
	return quote, nil
}

// Execute submits the swap for the given quote. The private key is
// canonicalized to base58 at this edge; everything past this call operates
// on a single key form.
func (c *Client) Execute(ctx context.Context, privateKeyBase58 string, q *swap.Quote, opts swap.ExecuteOpts) (*swap.ExecResult, error) {
	key, err := CanonicalPrivateKey(privateKeyBase58)
	if err != nil {
		return nil, swap.WrapError(swap.KindAuth, err, "invalid private key")
	}

	c.mu.Lock()
	entry, ok := c.routes[q.RouteID]
	c.mu.Unlock()
	if !ok || time.Since(entry.fetched) > c.staleAfter {
		// The entry stays until it ages out so a transport-level retry can
		// re-submit against the same quote.
		return nil, swap.NewError(swap.KindQuoteStale, "quote %s aged past %s", q.RouteID, c.staleAfter)
	}

	payload, err := json.Marshal(SwapRequest{
		UserWalletPrivateKeyBase58: key,
		QuoteResponse:              entry.resp,
		WrapAndUnwrapSol:           opts.WrapUnwrapSOL,
		CollectFees:                opts.CollectFee,
		VerifySwap:                 opts.Verify,
	})
	if err != nil {
		return nil, swap.WrapError(swap.KindUnknown, err, "marshal swap request")
	}

	body, err := c.do(ctx, http.MethodPost, "/swap", payload, c.executeTimeout)
	if err != nil {
		return nil, err
	}

	var resp SwapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, swap.WrapError(swap.KindTransport, err, "malformed swap response")
	}

	if resp.Status != "success" {
		return nil, classifyExecuteFailure(&resp)
	}

	c.mu.Lock()
	delete(c.routes, q.RouteID)
	c.mu.Unlock()

	res := &swap.ExecResult{
		TxID:         resp.TransactionID,
		OutputAmount: parseAmount(firstNonEmpty(resp.OutAmount, entry.resp.OutAmount)),
		NewBalance:   parseAmount(resp.NewBalance),
	}
	if fc := resp.FeeCollection; fc != nil {
		if fc.Status == "success" {
			res.FeeAmount = parseAmount(fc.FeeAmount)
		} else {
			// Fee collection is best-effort; a failed fee transfer never
			// fails the swap.
			c.logger.Warn("Fee collection failed",
				zap.String("tx", resp.TransactionID),
				zap.String("error", fc.Error))
		}
	}
	return res, nil
}

// toQuote converts the wire quote into the core quote, translating the
// decimal-percent price impact into basis points.
func (c *Client) toQuote(resp *QuoteResponse) (*swap.Quote, error) {
	in, err := strconv.ParseUint(resp.InAmount, 10, 64)
	if err != nil {
		return nil, swap.WrapError(swap.KindQuote, err, "bad inAmount")
	}
	out, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return nil, swap.WrapError(swap.KindQuote, err, "bad outAmount")
	}
	var impactBps int64
	if resp.PriceImpactPct != "" {
		pct, err := strconv.ParseFloat(resp.PriceImpactPct, 64)
		if err != nil {
			return nil, swap.WrapError(swap.KindQuote, err, "bad priceImpactPct")
		}
		impactBps = int64(math.Round(pct * 100))
	}
	return &swap.Quote{
		InAmount:       in,
		OutAmount:      out,
		RouteID:        uuid.NewString(),
		PriceImpactBps: impactBps,
		FetchedAt:      time.Now(),
	}, nil
}

// do performs one HTTP call with a per-call timeout, retrying transport and
// rate-limit failures with exponential backoff. Business errors surface
// immediately.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, timeout time.Duration) ([]byte, error) {
	op := func() ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(swap.WrapError(swap.KindUnknown, err, "build request"))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(swap.WrapError(swap.KindTransport, err, "request cancelled"))
			}
			return nil, swap.WrapError(swap.KindTransport, err, "request failed")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, swap.WrapError(swap.KindTransport, err, "read response")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, swap.NewError(swap.KindRateLimited, "aggregator throttled %s", path)
		case resp.StatusCode >= 500:
			return nil, swap.NewError(swap.KindTransport, "aggregator %d on %s", resp.StatusCode, path)
		default:
			return nil, backoff.Permanent(classifyBusinessBody(path, resp.StatusCode, body))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries+1)))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// classifyBusinessBody maps a 4xx body to an error kind. Quote-side
// rejections are terminal quote errors; execute-side codes get the full
// taxonomy.
func classifyBusinessBody(path string, status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	msg := firstNonEmpty(apiErr.Error, apiErr.Message, string(body))

	if strings.HasPrefix(path, "/quote") {
		return swap.NewError(swap.KindQuote, "quote rejected (%d): %s", status, msg)
	}
	return &swap.Error{Kind: kindFromCode(apiErr.ErrorCode, msg), Detail: fmt.Sprintf("(%d) %s", status, msg)}
}

// classifyExecuteFailure maps a status=failure swap response to an error
// kind, carrying the transaction id when the failure happened after
// submission.
func classifyExecuteFailure(resp *SwapResponse) error {
	kind := kindFromCode(resp.ErrorCode, resp.Error)
	return &swap.Error{
		Kind:   kind,
		Detail: firstNonEmpty(resp.Error, "swap execution failed"),
		TxID:   resp.TransactionID,
	}
}

// kindFromCode is the single place remote error text is interpreted. The
// rest of the system dispatches on the kind tag only.
func kindFromCode(code, message string) swap.ErrorKind {
	switch code {
	case "SLIPPAGE_EXCEEDED":
		return swap.KindSlippage
	case "QUOTE_EXPIRED", "QUOTE_STALE":
		return swap.KindQuoteStale
	case "INSUFFICIENT_BALANCE", "INSUFFICIENT_FUNDS":
		return swap.KindInsufficientBalance
	case "SIGNATURE_ERROR", "INVALID_SIGNATURE":
		return swap.KindAuth
	case "VERIFICATION_FAILED", "SWAP_NOT_CONFIRMED":
		return swap.KindVerification
	case "QUOTE_REJECTED":
		return swap.KindQuote
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "slippage"):
		return swap.KindSlippage
	case strings.Contains(lower, "stale") || strings.Contains(lower, "expired"):
		return swap.KindQuoteStale
	case strings.Contains(lower, "insufficient"):
		return swap.KindInsufficientBalance
	case strings.Contains(lower, "signature") || strings.Contains(lower, "private key"):
		return swap.KindAuth
	case strings.Contains(lower, "verif") || strings.Contains(lower, "not confirmed"):
		return swap.KindVerification
	case strings.Contains(lower, "quote"):
		return swap.KindQuote
	}
	return swap.KindUnknown
}

func parseAmount(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
