// ==================================
// File: internal/wallet/wallet.go
// ==================================
// Package wallet loads the swap fleet and snapshots balances. Wallets carry
// their private keys; the orchestrator hands each key to the core only
// through a KeyFunc, which the core calls just in time for execute.
package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

// Wallet is one fleet member. Index is stable within a run and acts as the
// scheduler's tie-breaker. PrivateKey is zero for watch-only entries.
type Wallet struct {
	Index      int
	Name       string
	PublicKey  solana.PublicKey
	PrivateKey solana.PrivateKey
}

// Address returns the base58 wallet address.
func (w *Wallet) Address() string {
	return w.PublicKey.String()
}

// Signable reports whether the wallet carries a signing key.
func (w *Wallet) Signable() bool {
	return len(w.PrivateKey) > 0
}

// fleetConfig is the structure of the wallets YAML file.
type fleetConfig struct {
	Wallets []struct {
		Name       string `yaml:"name"`
		Address    string `yaml:"address"`
		PrivateKey string `yaml:"private_key"`
	} `yaml:"wallets"`
}

// LoadFleet reads the fleet from a YAML file. Indices follow file order.
// Entries with a private key derive their address from it; watch-only
// entries need an explicit address.
func LoadFleet(path string) ([]*Wallet, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config fleetConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(config.Wallets) == 0 {
		return nil, fmt.Errorf("no wallets found in configuration")
	}

	wallets := make([]*Wallet, 0, len(config.Wallets))
	for i, entry := range config.Wallets {
		w := &Wallet{Index: i, Name: entry.Name}

		switch {
		case entry.PrivateKey != "":
			pk, err := solana.PrivateKeyFromBase58(entry.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("wallet %d (%s): invalid private key: %w", i, entry.Name, err)
			}
			w.PrivateKey = pk
			w.PublicKey = pk.PublicKey()
		case entry.Address != "":
			pub, err := solana.PublicKeyFromBase58(entry.Address)
			if err != nil {
				return nil, fmt.Errorf("wallet %d (%s): invalid address: %w", i, entry.Name, err)
			}
			w.PublicKey = pub
		default:
			return nil, fmt.Errorf("wallet %d (%s): needs a private key or an address", i, entry.Name)
		}

		wallets = append(wallets, w)
	}

	return wallets, nil
}

// SelectionKind picks which fleet members participate in a run.
type SelectionKind string

const (
	SelectAll    SelectionKind = "all"
	SelectFirstN SelectionKind = "first_n"
	SelectCustom SelectionKind = "custom"
)

// Selection describes the participating subset of the fleet.
type Selection struct {
	Kind    SelectionKind
	Count   int   // first_n
	Indices []int // custom
}

// Select applies the selection to the fleet. all and first_n keep fleet
// order; custom returns the wallets in the order the indices are listed.
func Select(fleet []*Wallet, sel Selection) ([]*Wallet, error) {
	switch sel.Kind {
	case SelectAll, "":
		return fleet, nil
	case SelectFirstN:
		if sel.Count < 1 {
			return nil, fmt.Errorf("first_n selection requires count >= 1")
		}
		if sel.Count > len(fleet) {
			return fleet, nil
		}
		return fleet[:sel.Count], nil
	case SelectCustom:
		if len(sel.Indices) == 0 {
			return nil, fmt.Errorf("custom selection requires indices")
		}
		selected := make([]*Wallet, 0, len(sel.Indices))
		seen := make(map[int]bool)
		for _, idx := range sel.Indices {
			if idx < 0 || idx >= len(fleet) {
				return nil, fmt.Errorf("wallet index %d out of range [0, %d)", idx, len(fleet))
			}
			if seen[idx] {
				return nil, fmt.Errorf("wallet index %d selected twice", idx)
			}
			seen[idx] = true
			selected = append(selected, fleet[idx])
		}
		return selected, nil
	default:
		return nil, fmt.Errorf("unsupported wallet selection: %q", sel.Kind)
	}
}
