// Package jupiter wraps the remote DEX aggregator behind the swap.Dex
// facade: uniform error classification, transport-level retry and per-call
// timeouts.
package jupiter

// QuoteResponse is the aggregator's quote payload. Amounts travel as
// base-unit decimal strings; priceImpactPct is a decimal percent.
type QuoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold,omitempty"`
	SwapMode             string      `json:"swapMode,omitempty"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []RoutePlan `json:"routePlan,omitempty"`
	ContextSlot          int64       `json:"contextSlot,omitempty"`
}

// RoutePlan describes a single step in the swap route.
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo contains details about a swap step.
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// SwapRequest is the execute payload. The private key must be base58; the
// caller-facing edge converts base64 keys before this struct is built. The
// full quote response is echoed back, so no separate amount field exists on
// the wire.
type SwapRequest struct {
	UserWalletPrivateKeyBase58 string         `json:"userWalletPrivateKeyBase58"`
	QuoteResponse              *QuoteResponse `json:"quoteResponse"`
	WrapAndUnwrapSol           bool           `json:"wrapAndUnwrapSol"`
	AsLegacyTransaction        bool           `json:"asLegacyTransaction"`
	CollectFees                bool           `json:"collectFees"`
	VerifySwap                 bool           `json:"verifySwap"`
}

// SwapResponse is the execute confirmation.
type SwapResponse struct {
	TransactionID string         `json:"transactionId"`
	Status        string         `json:"status"` // "success" | "failure"
	Error         string         `json:"error,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	NewBalance    string         `json:"newBalance,omitempty"`
	OutAmount     string         `json:"outAmount,omitempty"`
	FeeCollection *FeeCollection `json:"feeCollection,omitempty"`
}

// FeeCollection reports the best-effort service-fee transfer bundled with an
// execute. Its failure never fails the swap.
type FeeCollection struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	FeeAmount     string `json:"feeAmount"`
	FeeTokenMint  string `json:"feeTokenMint"`
	Error         string `json:"error,omitempty"`
}

// TokenInfo is one entry of the aggregator's token list.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Mint     string `json:"mint"`
	Decimals uint8  `json:"decimals"`
}

// apiError is the error body the aggregator returns on non-200 responses.
type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}
