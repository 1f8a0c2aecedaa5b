package jupiter

import "github.com/rovshanmuradov/spl-fleet/internal/swap"

// Well-known mainnet mints.
const (
	SOLMint  = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	BONKMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	WIFMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
)

// DefaultTokens returns the built-in symbol table used by the mock client
// and as a sane starting point when the aggregator's token list is down.
func DefaultTokens() map[string]swap.Token {
	return map[string]swap.Token{
		"SOL":  {Symbol: "SOL", Mint: SOLMint, Decimals: 9},
		"USDC": {Symbol: "USDC", Mint: USDCMint, Decimals: 6},
		"USDT": {Symbol: "USDT", Mint: USDTMint, Decimals: 6},
		"BONK": {Symbol: "BONK", Mint: BONKMint, Decimals: 5},
		"WIF":  {Symbol: "WIF", Mint: WIFMint, Decimals: 6},
	}
}
