package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common/math"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/store"
)

// localKeyAdapter generates and holds a private key in-process and signs
// locally with it. Grounded on the go-ethereum crypto package, the same
// library the retrieved x402 wallet reference code uses for ECDSA signing.
type localKeyAdapter struct {
	key     *ecdsa.PrivateKey
	address string
	br      BalanceReader
}

func newLocalKeyAdapter(cfg store.AdapterConfig, br BalanceReader) (Adapter, error) {
	a := &localKeyAdapter{br: br}
	if cfg.PrivateKeyHex != "" {
		key, err := gethcrypto.HexToECDSA(stripHexPrefix(cfg.PrivateKeyHex))
		if err != nil {
			return nil, brokererr.Wrap(brokererr.KindValidation, err, "invalid local-key private key")
		}
		a.key = key
		a.address = gethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	return a, nil
}

func (a *localKeyAdapter) Provision(ctx context.Context) (string, error) {
	if a.key != nil {
		return a.address, nil
	}
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		return "", brokererr.Wrap(brokererr.KindInternal, err, "cannot generate private key")
	}
	a.key = key
	a.address = gethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	return a.address, nil
}

func (a *localKeyAdapter) Address() (string, error) {
	if a.key == nil {
		return "", brokererr.New(brokererr.KindNotInitialized, "wallet not initialized")
	}
	return a.address, nil
}

func (a *localKeyAdapter) IsInitialized() bool {
	return a.key != nil
}

func (a *localKeyAdapter) Balance(ctx context.Context, network chain.Network) (string, error) {
	addr, err := a.Address()
	if err != nil {
		return "", err
	}
	return a.br.BalanceOf(ctx, network, addr)
}

func (a *localKeyAdapter) SignTypedData(ctx context.Context, req SignRequest) (string, error) {
	if a.key == nil {
		return "", brokererr.New(brokererr.KindNotInitialized, "wallet not initialized")
	}

	typedData := toAPITypedData(req)
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", brokererr.Wrap(brokererr.KindInternal, err, "cannot hash typed data")
	}

	sig, err := gethcrypto.Sign(hash, a.key)
	if err != nil {
		return "", brokererr.Wrap(brokererr.KindInternal, err, "cannot sign typed data")
	}
	// EIP-712/ecrecover convention expects v in {27,28}; crypto.Sign returns {0,1}.
	if len(sig) == 65 && sig[64] < 27 {
		sig[64] += 27
	}

	if err := a.verifySelf(hash, sig); err != nil {
		return "", err
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// verifySelf recovers the signer address from sig and asserts it matches
// this adapter's address (SPEC_FULL.md §4.4 expansion), mirroring the
// VerifyPaymentSignature idiom from the retrieved x402 wallet code.
func (a *localKeyAdapter) verifySelf(hash []byte, sig []byte) error {
	recoverSig := append([]byte(nil), sig...)
	if recoverSig[64] >= 27 {
		recoverSig[64] -= 27
	}
	pub, err := gethcrypto.SigToPub(hash, recoverSig)
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, err, "cannot recover signature")
	}
	recovered := gethcrypto.PubkeyToAddress(*pub).Hex()
	if recovered != a.address {
		return brokererr.Newf(brokererr.KindInternal, "signature self-check failed: recovered %s, expected %s", recovered, a.address)
	}
	return nil
}

func (a *localKeyAdapter) Serialize() store.AdapterConfig {
	privHex := ""
	if a.key != nil {
		privHex = hex.EncodeToString(gethcrypto.FromECDSA(a.key))
	}
	return store.AdapterConfig{Kind: store.AdapterLocalKey, PrivateKeyHex: privHex, CachedAddress: a.address}
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// toAPITypedData converts the broker's chain.Config/Field-based SignRequest
// into go-ethereum's apitypes.TypedData shape.
func toAPITypedData(req SignRequest) apitypes.TypedData {
	types := apitypes.Types{}
	for name, fields := range req.Types {
		apiFields := make([]apitypes.Type, len(fields))
		for i, f := range fields {
			apiFields[i] = apitypes.Type{Name: f.Name, Type: f.Type}
		}
		types[name] = apiFields
	}

	return apitypes.TypedData{
		Types:       types,
		PrimaryType: req.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              req.Domain.USDCName,
			Version:           req.Domain.USDCVersion,
			ChainId:           math.NewHexOrDecimal256(req.Domain.ChainID),
			VerifyingContract: req.Domain.USDCAddress.Hex(),
		},
		Message: apitypes.TypedDataMessage(req.Message),
	}
}
