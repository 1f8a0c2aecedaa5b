package wallet

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const nativeSOLMint = "So11111111111111111111111111111111111111112"

// Source is the read-only fleet query interface the orchestrator consumes:
// the wallet list and point-in-time balances in base units.
type Source interface {
	ListWallets(ctx context.Context) ([]*Wallet, error)
	Balance(ctx context.Context, address, mint string) (uint64, error)
}

// RPCSource snapshots balances from a Solana RPC node. Native SOL reads the
// lamport balance; SPL tokens read the associated token account.
type RPCSource struct {
	fleet  []*Wallet
	client *rpc.Client
	logger *zap.Logger
}

// NewRPCSource creates an RPC-backed source for a loaded fleet.
func NewRPCSource(fleet []*Wallet, rpcURL string, logger *zap.Logger) *RPCSource {
	return &RPCSource{
		fleet:  fleet,
		client: rpc.New(rpcURL),
		logger: logger.Named("wallet_source"),
	}
}

// ListWallets returns the fleet.
func (s *RPCSource) ListWallets(_ context.Context) ([]*Wallet, error) {
	return s.fleet, nil
}

// Balance reads the current balance of address for mint, in base units.
func (s *RPCSource) Balance(ctx context.Context, address, mint string) (uint64, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid wallet address %q: %w", address, err)
	}

	if mint == nativeSOLMint {
		out, err := s.client.GetBalance(ctx, owner, rpc.CommitmentFinalized)
		if err != nil {
			return 0, fmt.Errorf("get balance for %s: %w", address, err)
		}
		return out.Value, nil
	}

	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mintKey)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}

	out, err := s.client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentFinalized)
	if err != nil {
		// A missing token account is an empty balance, not a failure.
		s.logger.Debug("Token account lookup failed, treating as zero",
			zap.String("wallet", address),
			zap.String("mint", mint),
			zap.Error(err))
		return 0, nil
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token balance %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}

// StaticSource serves a fixed fleet and balance table. Mock mode and the
// test suite use it in place of an RPC node.
type StaticSource struct {
	Fleet          []*Wallet
	Balances       map[string]map[string]uint64 // address -> mint -> base units
	DefaultBalance uint64                       // used when the table has no entry
}

// ListWallets returns the fixed fleet.
func (s *StaticSource) ListWallets(_ context.Context) ([]*Wallet, error) {
	return s.Fleet, nil
}

// Balance looks up the fixed table, falling back to the default balance.
func (s *StaticSource) Balance(_ context.Context, address, mint string) (uint64, error) {
	if byMint, ok := s.Balances[address]; ok {
		if amount, ok := byMint[mint]; ok {
			return amount, nil
		}
	}
	return s.DefaultBalance, nil
}
