package paygate

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkParse(t *testing.T) {
	ns, ref, err := Network("eip155:84532").Parse()
	require.NoError(t, err)
	assert.Equal(t, "eip155", ns)
	assert.Equal(t, "84532", ref)

	for _, bad := range []Network{"", "eip155", "eip155:", ":84532", "a:b:c"} {
		_, _, err := bad.Parse()
		assert.Error(t, err, "network %q", bad)
	}
}

func TestNetworkChainID(t *testing.T) {
	id, err := Network("eip155:8453").ChainID()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(8453), id)

	_, err = Network("solana:mainnet").ChainID()
	assert.Error(t, err)
	_, err = Network("eip155:not-a-number").ChainID()
	assert.Error(t, err)
}

func TestNetworkMatch(t *testing.T) {
	assert.True(t, Network("eip155:8453").Match("eip155:8453"))
	assert.True(t, Network("eip155:8453").Match("eip155:*"))
	assert.False(t, Network("eip155:8453").Match("eip155:84532"))
	assert.False(t, Network("solana:mainnet").Match("eip155:*"))
}

func TestDeepEqualIgnoresFieldOrder(t *testing.T) {
	a := PaymentRequirements{Scheme: "exact", Network: "eip155:8453", Amount: "1",
		Extra: map[string]interface{}{"name": "USDC", "version": "2"}}
	b := PaymentRequirements{Extra: map[string]interface{}{"version": "2", "name": "USDC"},
		Amount: "1", Network: "eip155:8453", Scheme: "exact"}
	assert.True(t, DeepEqual(a, b))

	b.Amount = "2"
	assert.False(t, DeepEqual(a, b))
}

func TestRegistryRequiresPayeeAndPrice(t *testing.T) {
	_, err := NewRequirementRegistry(ResourceConfig{Price: "0.01", Network: "eip155:84532"})
	assert.Equal(t, ErrCodeConfiguration, CodeOf(err))

	_, err = NewRequirementRegistry(ResourceConfig{PayTo: "0xabc", Network: "eip155:84532"})
	assert.Equal(t, ErrCodeConfiguration, CodeOf(err))

	_, err = NewRequirementRegistry(ResourceConfig{PayTo: "0xabc", Price: "0.01", Network: "eip155:1"})
	assert.Equal(t, ErrCodeConfiguration, CodeOf(err), "unknown network with no pinned asset")
}

func TestRegistryDerivesRequirements(t *testing.T) {
	registry, err := NewRequirementRegistry(ResourceConfig{
		Description: "query service",
		PayTo:       "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Price:       "0.01",
		Network:     "eip155:84532",
	})
	require.NoError(t, err)

	reqs := registry.Requirements()
	require.Len(t, reqs, 1)
	r := reqs[0]
	assert.Equal(t, SchemeExact, r.Scheme)
	assert.Equal(t, "10000", r.Amount, "0.01 with 6 decimals")
	assert.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", r.Asset)
	assert.Equal(t, DefaultMaxTimeoutSeconds, r.MaxTimeoutSeconds)
	assert.Equal(t, "USDC", r.Extra["name"])
	assert.Equal(t, "2", r.Extra["version"])
}

func TestRegistryPinnedAssetOverridesDefaults(t *testing.T) {
	registry, err := NewRequirementRegistry(ResourceConfig{
		PayTo:        "0xabc",
		Price:        "1.5",
		Network:      "eip155:1",
		Asset:        "0x1111111111111111111111111111111111111111",
		TokenName:    "Custom Token",
		TokenVersion: "1",
		Decimals:     18,
	})
	require.NoError(t, err)

	r := registry.Requirements()[0]
	assert.Equal(t, "1500000000000000000", r.Amount)
	assert.Equal(t, "Custom Token", r.Extra["name"])
}

func TestRegistryRequirementsReturnsCopy(t *testing.T) {
	registry, err := NewRequirementRegistry(ResourceConfig{
		PayTo: "0xabc", Price: "0.01", Network: "eip155:84532",
	})
	require.NoError(t, err)

	reqs := registry.Requirements()
	reqs[0].Amount = "tampered"
	assert.Equal(t, "10000", registry.Requirements()[0].Amount)
}

func TestChallengeCarriesTrueResourceURL(t *testing.T) {
	registry, err := NewRequirementRegistry(ResourceConfig{
		Description: "the real description",
		PayTo:       "0xabc",
		Price:       "0.01",
		Network:     "eip155:84532",
	})
	require.NoError(t, err)

	challenge := registry.Challenge("https://api.example.com/ask")
	assert.Equal(t, ProtocolVersion, challenge.X402Version)
	require.NotNil(t, challenge.Resource)
	assert.Equal(t, "https://api.example.com/ask", challenge.Resource.URL)
	assert.Equal(t, "the real description", challenge.Resource.Description)
	assert.Len(t, challenge.Accepts, 1)
}

func TestAmountToBaseUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"0.01", 6, "10000"},
		{"1", 6, "1000000"},
		{"0.000001", 6, "1"},
		{"2.5", 18, "2500000000000000000"},
	}
	for _, tc := range cases {
		amount, ok := new(big.Float).SetPrec(256).SetString(tc.amount)
		require.True(t, ok)
		assert.Equal(t, tc.want, AmountToBaseUnits(amount, tc.decimals).String(), "amount %s", tc.amount)
	}
}

func TestValidatePaymentPayload(t *testing.T) {
	valid := PaymentPayload{
		X402Version: ProtocolVersion,
		Payload:     map[string]interface{}{"signature": "0x"},
		Accepted: PaymentRequirements{
			Scheme: SchemeExact, Network: "eip155:84532",
			Asset: "0xasset", Amount: "1", PayTo: "0xpayee",
		},
	}
	assert.NoError(t, ValidatePaymentPayload(valid))

	wrongVersion := valid
	wrongVersion.X402Version = 1
	assert.Error(t, ValidatePaymentPayload(wrongVersion))

	noPayload := valid
	noPayload.Payload = nil
	assert.Error(t, ValidatePaymentPayload(noPayload))

	badAccepted := valid
	badAccepted.Accepted.Amount = ""
	assert.Error(t, ValidatePaymentPayload(badAccepted))
}

func TestReplayGuardMarkIfUnseen(t *testing.T) {
	guard := NewReplayGuard(time.Hour)

	assert.True(t, guard.MarkIfUnseen("0xFrom", "0xAsset", "0xNonce"))
	assert.False(t, guard.MarkIfUnseen("0xFrom", "0xAsset", "0xNonce"))
	assert.True(t, guard.Seen("0xFrom", "0xAsset", "0xNonce"))

	// Different nonce, signer or asset is a different key.
	assert.True(t, guard.MarkIfUnseen("0xFrom", "0xAsset", "0xOther"))
	assert.True(t, guard.MarkIfUnseen("0xElse", "0xAsset", "0xNonce"))
}

func TestReplayGuardCaseInsensitive(t *testing.T) {
	guard := NewReplayGuard(time.Hour)
	require.True(t, guard.MarkIfUnseen("0xABCDEF", "0xAsset", "0xNonce"))
	assert.False(t, guard.MarkIfUnseen("0xabcdef", "0xASSET", "0xNONCE"),
		"checksum casing differences must not allow replay")
}

func TestReplayGuardConcurrentMarking(t *testing.T) {
	guard := NewReplayGuard(time.Hour)

	const goroutines = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.MarkIfUnseen("0xFrom", "0xAsset", "0xContested") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins, "exactly one marker wins")
}

func TestReplayGuardDistinctKeysIndependent(t *testing.T) {
	guard := NewReplayGuard(time.Hour)
	for i := 0; i < 100; i++ {
		assert.True(t, guard.MarkIfUnseen("0xFrom", "0xAsset", fmt.Sprintf("0xnonce-%d", i)))
	}
}
