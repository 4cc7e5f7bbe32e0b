package broker

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/clawlet/broker/audit"
	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/ledger"
	"github.com/clawlet/broker/log"
	"github.com/clawlet/broker/rules"
	"github.com/clawlet/broker/store"
	"github.com/clawlet/broker/wallet"
)

var logger = log.NewModuleLogger(log.Broker)

const sweepInterval = 60 * time.Second

// Broker implements spec.md §4.6: x402 negotiation, single-shot fetch,
// two-phase prepare/complete, and the payment-session sweeper.
type Broker struct {
	store   *store.Store
	manager *wallet.Manager
	ledger  *ledger.Ledger
	rules   *rules.Engine
	audit   *audit.Bus

	httpClient *http.Client

	mu       sync.Mutex
	sessions map[string]*PaymentSession

	stopCh chan struct{}
}

// New builds a Broker and starts its 60-second session sweeper
// (spec.md §4.6.3). auditBus may be nil (auditing disabled).
func New(st *store.Store, manager *wallet.Manager, l *ledger.Ledger, r *rules.Engine, auditBus *audit.Bus) *Broker {
	b := &Broker{
		store:      st,
		manager:    manager,
		ledger:     l,
		rules:      r,
		audit:      auditBus,
		httpClient: &http.Client{},
		sessions:   map[string]*PaymentSession{},
		stopCh:     make(chan struct{}),
	}
	go b.sweepLoop()
	return b
}

// Close stops the session sweeper.
func (b *Broker) Close() {
	close(b.stopCh)
}

// SessionCount reports the number of in-flight two-phase payment sessions,
// for the httpapi's clawlet_active_sessions gauge.
func (b *Broker) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Broker) requireUnfrozen() error {
	frozen, err := b.manager.IsActiveFrozen()
	if err != nil {
		return err
	}
	if frozen {
		return brokererr.New(brokererr.KindFrozen, "active wallet is frozen")
	}
	return nil
}

func buildRequest(rawURL string, opts RequestOptions) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var bodyReader io.Reader
	if len(opts.Body) > 0 {
		bodyReader = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequest(method, rawURL, bodyReader)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindValidation, err, fmt.Sprintf("invalid request for %q", rawURL))
	}
	for k, vals := range opts.Headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Fetch is the single-shot flow for server-signable adapters (spec.md §4.6.2).
func (b *Broker) Fetch(rawURL string, opts RequestOptions) (*Result, error) {
	if err := b.requireUnfrozen(); err != nil {
		return nil, err
	}

	req, err := buildRequest(rawURL, opts)
	if err != nil {
		return nil, err
	}

	pay, err := b.negotiate(req)
	if err != nil {
		return nil, err
	}
	if pay.passthrough != nil {
		return passthroughResult(pay.passthrough), nil
	}

	adapter, err := b.manager.ActiveAdapter()
	if err != nil {
		return nil, err
	}
	address, err := adapter.Address()
	if err != nil {
		return nil, err
	}

	auth, nonce, validAfter, validBefore, err := buildAuthorization(address, pay.accepted)
	if err != nil {
		return nil, err
	}

	humanAmount, err := humanAmountFor(pay.accepted.Amount)
	if err != nil {
		return nil, err
	}

	txRecord, err := b.ledger.Add(ledger.AddInput{
		Payee: pay.accepted.PayTo, Service: pay.service, Amount: humanAmount,
		Asset: pay.accepted.Asset, Network: pay.accepted.Network,
		Status: store.TxPending, Reason: opts.Reason,
	})
	if err != nil {
		return nil, err
	}

	signRequest, err := b.buildSignRequest(pay.accepted, address, auth, nonce, validAfter, validBefore)
	if err != nil {
		b.failTx(txRecord.ID, pay.service, humanAmount, err)
		return nil, err
	}

	signature, err := adapter.SignTypedData(req.Context(), signRequest)
	if err != nil {
		b.failTx(txRecord.ID, pay.service, humanAmount, err)
		return nil, err
	}

	result, err := b.retryWithSignature(req, pay, auth, signature, txRecord.ID, humanAmount)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// retryWithSignature re-issues req with the signed authorization attached
// and settles the ledger entry from the outcome (spec.md §4.6.2 steps 5–9,
// shared with the two-phase Complete flow).
func (b *Broker) retryWithSignature(req *http.Request, pay *payment, auth authorization, signature, txID, humanAmount string) (*Result, error) {
	body, err := encodePaymentPayload(pay, auth, signature)
	if err != nil {
		b.failTx(txID, pay.service, humanAmount, err)
		return nil, err
	}

	retryReq, err := cloneRequest(req)
	if err != nil {
		b.failTx(txID, pay.service, humanAmount, err)
		return nil, err
	}
	retryReq.Header.Set("PAYMENT-SIGNATURE", body)
	retryReq.Header.Set("X-PAYMENT", body)
	b.addAgentHeaders(retryReq)

	resp, err := b.httpClient.Do(retryReq)
	if err != nil {
		wrapped := brokererr.Wrap(brokererr.KindUpstream, err, "retry request failed")
		b.failTx(txID, pay.service, humanAmount, wrapped)
		return nil, wrapped
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		wrapped := brokererr.Wrap(brokererr.KindUpstream, err, "cannot read retry response body")
		b.failTx(txID, pay.service, humanAmount, wrapped)
		return nil, wrapped
	}

	txHash := parseReceipt(resp.Header)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		b.settleTx(txID, txHash, pay.service, humanAmount)
	} else {
		reason := fmt.Sprintf("retry failed with status %d", resp.StatusCode)
		_, _ = b.ledger.Update(txID, ledger.UpdatePatch{Status: statusPtr(store.TxFailed), Reason: &reason})
		b.publishAudit(txID, pay.service, humanAmount, store.TxFailed)
	}

	bodyText := string(bodyBytes)
	return &Result{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    &bodyText,
		Payment: &PaymentInfo{TxHash: txHash, Amount: humanAmount, PayTo: pay.accepted.PayTo},
	}, nil
}

func (b *Broker) addAgentHeaders(req *http.Request) {
	identity, err := b.manager.GetAgentIdentity()
	if err != nil || identity == nil {
		return
	}
	if identity.AgentID == nil || identity.Registry == nil {
		return
	}
	req.Header.Set("X-AGENT-ID", *identity.AgentID)
	req.Header.Set("X-AGENT-REGISTRY", *identity.Registry)
	if identity.Name != "" {
		req.Header.Set("X-AGENT-NAME", identity.Name)
	}
}

func (b *Broker) settleTx(txID string, txHash *string, service, humanAmount string) {
	status := store.TxSettled
	_, _ = b.ledger.Update(txID, ledger.UpdatePatch{Status: &status, TxHash: txHash})
	b.publishAudit(txID, service, humanAmount, status)
}

func (b *Broker) failTx(txID, service, humanAmount string, cause error) {
	status := store.TxFailed
	reason := cause.Error()
	_, _ = b.ledger.Update(txID, ledger.UpdatePatch{Status: &status, Reason: &reason})
	b.publishAudit(txID, service, humanAmount, status)
}

func (b *Broker) publishAudit(txID, service, humanAmount string, status store.TxStatus) {
	if b.audit == nil {
		return
	}
	w, ok := b.manager.Get()
	walletID := ""
	if ok {
		walletID = w.ID
	}
	b.audit.Publish(audit.Event{WalletID: walletID, TxID: txID, Status: string(status), Amount: humanAmount, Service: service})
}

func statusPtr(s store.TxStatus) *store.TxStatus { return &s }

func passthroughResult(p *Passthrough) *Result {
	body := p.BodyText
	return &Result{Status: p.Status, Headers: p.Headers, Body: &body, Payment: nil}
}

// buildAuthorization constructs the ERC-3009 authorization fields for the
// given accepted option, with a fresh random nonce (spec.md §4.6.2 step 2).
func buildAuthorization(from string, accepted PaymentRequirements) (authorization, [32]byte, int64, int64, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return authorization{}, nonce, 0, 0, brokererr.Wrap(brokererr.KindInternal, err, "cannot generate nonce")
	}
	now := time.Now().Unix()
	validAfter := now
	validBefore := now + int64(accepted.MaxTimeoutSeconds)

	auth := authorization{
		From: from, To: accepted.PayTo, Value: accepted.Amount,
		ValidAfter:  fmt.Sprintf("%d", validAfter),
		ValidBefore: fmt.Sprintf("%d", validBefore),
		Nonce:       "0x" + hex.EncodeToString(nonce[:]),
	}
	return auth, nonce, validAfter, validBefore, nil
}

// buildSignRequest assembles the EIP-712 typed-data payload for auth under
// the USDC domain of accepted.Network's chain (spec.md §4.6.2 step 3).
func (b *Broker) buildSignRequest(accepted PaymentRequirements, from string, auth authorization, nonce [32]byte, validAfter, validBefore int64) (wallet.SignRequest, error) {
	cfg, ok := chain.ByCAIP2(accepted.Network)
	if !ok {
		return wallet.SignRequest{}, brokererr.Newf(brokererr.KindNetworkMismatch, "unrecognized network %q", accepted.Network)
	}
	amount, ok := new(big.Int).SetString(accepted.Amount, 10)
	if !ok {
		return wallet.SignRequest{}, brokererr.Newf(brokererr.KindUpstream, "malformed amount %q", accepted.Amount)
	}
	return wallet.SignRequest{
		Domain:      cfg,
		Types:       chain.TransferWithAuthorizationTypes,
		PrimaryType: chain.PrimaryTypeTransferWithAuthorization,
		Message: map[string]interface{}{
			"from":        from,
			"to":          accepted.PayTo,
			"value":       amount,
			"validAfter":  fmt.Sprintf("%d", validAfter),
			"validBefore": fmt.Sprintf("%d", validBefore),
			"nonce":       "0x" + hex.EncodeToString(nonce[:]),
		},
	}, nil
}

func encodePaymentPayload(pay *payment, auth authorization, signature string) (string, error) {
	envelope := paymentPayload{
		X402Version: pay.doc.X402Version,
		Resource:    pay.doc.Resource,
		Accepted:    pay.accepted,
		Payload:     signedPayload{Signature: signature, Authorization: auth},
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", brokererr.Wrap(brokererr.KindInternal, err, "cannot encode payment payload")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	// negotiate has already sent (and drained) req.Body; GetBody yields a
	// fresh copy for requests built by http.NewRequest.
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, brokererr.Wrap(brokererr.KindUpstream, err, "cannot read request body for retry")
		}
		clone := req.Clone(req.Context())
		clone.Body = body
		return clone, nil
	}
	var bodyBytes []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, brokererr.Wrap(brokererr.KindUpstream, err, "cannot read request body for retry")
		}
		bodyBytes = b
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	clone := req.Clone(req.Context())
	if bodyBytes != nil {
		clone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	return clone, nil
}

// humanAmountFor parses accepted.Amount (atomic units, decimal string) and
// formats it per spec.md §4.6.4.
func humanAmountFor(atomicDecimal string) (string, error) {
	v, ok := new(big.Int).SetString(atomicDecimal, 10)
	if !ok {
		return "", brokererr.Newf(brokererr.KindUpstream, "malformed payment amount %q", atomicDecimal)
	}
	return chain.FormatAtomic(v, chain.USDCDecimals), nil
}
