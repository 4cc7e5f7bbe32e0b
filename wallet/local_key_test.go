package wallet

import (
	"context"
	"encoding/hex"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"

	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/store"
)

type stubBalanceReader struct {
	balance string
	err     error
}

func (s *stubBalanceReader) BalanceOf(ctx context.Context, network chain.Network, address string) (string, error) {
	return s.balance, s.err
}

func testSignRequest() SignRequest {
	cfg, _ := chain.ByNetwork(chain.Base)
	return SignRequest{
		Domain:      cfg,
		Types:       chain.TransferWithAuthorizationTypes,
		PrimaryType: chain.PrimaryTypeTransferWithAuthorization,
		Message: map[string]interface{}{
			"from":        "0x1111111111111111111111111111111111111111",
			"to":          "0x2222222222222222222222222222222222222222",
			"value":       "1000000",
			"validAfter":  "0",
			"validBefore": "9999999999",
			"nonce":       "0x0011223344556677889900112233445566778899001122334455667788990a",
		},
	}
}

func TestLocalKeyAdapter_ProvisionGeneratesAddress(t *testing.T) {
	adapter, err := newLocalKeyAdapter(store.AdapterConfig{Kind: store.AdapterLocalKey}, &stubBalanceReader{})
	assert.NoError(t, err)
	assert.False(t, adapter.IsInitialized())

	addr, err := adapter.Provision(context.Background())
	assert.NoError(t, err)
	assert.NotEmpty(t, addr)
	assert.True(t, adapter.IsInitialized())

	gotAddr, err := adapter.Address()
	assert.NoError(t, err)
	assert.Equal(t, addr, gotAddr)
}

func TestLocalKeyAdapter_ProvisionIsIdempotentWithExistingKey(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	assert.NoError(t, err)
	privHex := gethcrypto.FromECDSA(key)

	adapter, err := newLocalKeyAdapter(store.AdapterConfig{Kind: store.AdapterLocalKey, PrivateKeyHex: hex.EncodeToString(privHex)}, &stubBalanceReader{})
	assert.NoError(t, err)
	assert.True(t, adapter.IsInitialized())

	expected := gethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	addr, err := adapter.Provision(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, expected, addr)
}

func TestLocalKeyAdapter_SignTypedDataSelfVerifies(t *testing.T) {
	adapter, err := newLocalKeyAdapter(store.AdapterConfig{Kind: store.AdapterLocalKey}, &stubBalanceReader{})
	assert.NoError(t, err)
	_, err = adapter.Provision(context.Background())
	assert.NoError(t, err)

	sig, err := adapter.SignTypedData(context.Background(), testSignRequest())
	assert.NoError(t, err)
	assert.True(t, len(sig) > 2 && sig[:2] == "0x")
}

func TestLocalKeyAdapter_BalanceDelegatesToReader(t *testing.T) {
	adapter, err := newLocalKeyAdapter(store.AdapterConfig{Kind: store.AdapterLocalKey}, &stubBalanceReader{balance: "12.5"})
	assert.NoError(t, err)
	_, err = adapter.Provision(context.Background())
	assert.NoError(t, err)

	bal, err := adapter.Balance(context.Background(), chain.Base)
	assert.NoError(t, err)
	assert.Equal(t, "12.5", bal)
}

func TestLocalKeyAdapter_SerializeRoundTrips(t *testing.T) {
	adapter, err := newLocalKeyAdapter(store.AdapterConfig{Kind: store.AdapterLocalKey}, &stubBalanceReader{})
	assert.NoError(t, err)
	addr, err := adapter.Provision(context.Background())
	assert.NoError(t, err)

	serialized := adapter.Serialize()
	assert.Equal(t, store.AdapterLocalKey, serialized.Kind)
	assert.NotEmpty(t, serialized.PrivateKeyHex)

	rehydrated, err := newLocalKeyAdapter(serialized, &stubBalanceReader{})
	assert.NoError(t, err)
	gotAddr, err := rehydrated.Address()
	assert.NoError(t, err)
	assert.Equal(t, addr, gotAddr)
}
