package wallet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFleet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFleetAssignsIndicesInFileOrder(t *testing.T) {
	k1, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	k2, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	content := fmt.Sprintf(`
wallets:
  - name: alpha
    private_key: %s
  - name: beta
    private_key: %s
`, k1.String(), k2.String())

	fleet, err := LoadFleet(writeFleet(t, content))
	require.NoError(t, err)
	require.Len(t, fleet, 2)

	assert.Equal(t, 0, fleet[0].Index)
	assert.Equal(t, "alpha", fleet[0].Name)
	assert.Equal(t, k1.PublicKey().String(), fleet[0].Address())
	assert.True(t, fleet[0].Signable())

	assert.Equal(t, 1, fleet[1].Index)
	assert.Equal(t, k2.PublicKey().String(), fleet[1].Address())
}

func TestLoadFleetWatchOnly(t *testing.T) {
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	content := fmt.Sprintf(`
wallets:
  - name: watcher
    address: %s
`, k.PublicKey().String())

	fleet, err := LoadFleet(writeFleet(t, content))
	require.NoError(t, err)
	require.Len(t, fleet, 1)
	assert.False(t, fleet[0].Signable())
	assert.Equal(t, k.PublicKey().String(), fleet[0].Address())
}

func TestLoadFleetRejectsInvalidEntries(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty file", "wallets: []\n"},
		{"bad key", "wallets:\n  - name: x\n    private_key: not-base58!!\n"},
		{"no key or address", "wallets:\n  - name: x\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFleet(writeFleet(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func testWallets(t *testing.T, n int) []*Wallet {
	t.Helper()
	fleet := make([]*Wallet, 0, n)
	for i := 0; i < n; i++ {
		pk, err := solana.NewRandomPrivateKey()
		require.NoError(t, err)
		fleet = append(fleet, &Wallet{Index: i, PrivateKey: pk, PublicKey: pk.PublicKey()})
	}
	return fleet
}

func TestSelect(t *testing.T) {
	fleet := testWallets(t, 5)

	all, err := Select(fleet, Selection{Kind: SelectAll})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	firstTwo, err := Select(fleet, Selection{Kind: SelectFirstN, Count: 2})
	require.NoError(t, err)
	require.Len(t, firstTwo, 2)
	assert.Equal(t, 0, firstTwo[0].Index)
	assert.Equal(t, 1, firstTwo[1].Index)

	custom, err := Select(fleet, Selection{Kind: SelectCustom, Indices: []int{4, 1}})
	require.NoError(t, err)
	require.Len(t, custom, 2)
	assert.Equal(t, 4, custom[0].Index)

	_, err = Select(fleet, Selection{Kind: SelectCustom, Indices: []int{9}})
	assert.Error(t, err)

	_, err = Select(fleet, Selection{Kind: SelectCustom, Indices: []int{1, 1}})
	assert.Error(t, err)

	_, err = Select(fleet, Selection{Kind: SelectFirstN})
	assert.Error(t, err)
}

func TestStaticSourceBalances(t *testing.T) {
	fleet := testWallets(t, 1)
	source := &StaticSource{
		Fleet: fleet,
		Balances: map[string]map[string]uint64{
			fleet[0].Address(): {"mintA": 123},
		},
		DefaultBalance: 999,
	}

	got, err := source.Balance(context.Background(), fleet[0].Address(), "mintA")
	require.NoError(t, err)
	assert.Equal(t, uint64(123), got)

	got, err = source.Balance(context.Background(), fleet[0].Address(), "mintB")
	require.NoError(t, err)
	assert.Equal(t, uint64(999), got, "unknown mints fall back to the default")
}
