package broker

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/ledger"
	"github.com/clawlet/broker/store"
)

const sessionExpiredReason = "Payment session expired"

// PaymentSession is a process-local record connecting a prepared-but-unsigned
// authorization to the eventual externally-supplied signature (spec.md §4.6.3).
// Sessions are never persisted: a restart loses them intentionally (spec.md §9).
type PaymentSession struct {
	req         requestSnapshot
	reason      string
	accepted    PaymentRequirements
	doc         paymentRequiredDoc
	service     string
	auth        authorization
	txRecordID  string
	humanAmount string
	expiresAt   int64
}

// requestSnapshot captures what's needed to rebuild the retry request once
// complete() supplies the signature.
type requestSnapshot struct {
	url     string
	method  string
	headers map[string][]string
	body    []byte
}

// Prepare performs negotiation and authorization construction but stops
// before signing (spec.md §4.6.3). A passthrough response at this stage is
// a programming error.
func (b *Broker) Prepare(rawURL string, opts RequestOptions) (*SessionDescriptor, error) {
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
		return nil, brokererr.New(brokererr.KindInternal, "not-402: upstream did not require payment")
	}

	adapter, err := b.manager.ActiveAdapter()
	if err != nil {
		return nil, err
	}
	address, err := adapter.Address()
	if err != nil {
		return nil, err
	}

	auth, _, _, validBefore, err := buildAuthorization(address, pay.accepted)
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

	sessionID, err := randomHex(16)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindInternal, err, "cannot generate session id")
	}

	cfg, ok := chain.ByCAIP2(pay.accepted.Network)
	if !ok {
		return nil, brokererr.Newf(brokererr.KindNetworkMismatch, "unrecognized network %q", pay.accepted.Network)
	}

	session := &PaymentSession{
		req:         snapshotRequest(rawURL, opts),
		reason:      opts.Reason,
		accepted:    pay.accepted,
		doc:         pay.doc,
		service:     pay.service,
		auth:        auth,
		txRecordID:  txRecord.ID,
		humanAmount: humanAmount,
		expiresAt:   validBefore,
	}

	b.mu.Lock()
	b.sessions[sessionID] = session
	b.mu.Unlock()

	return &SessionDescriptor{
		SessionID:   sessionID,
		Domain:      domainMap(cfg),
		Types:       chain.TransferWithAuthorizationTypes,
		PrimaryType: chain.PrimaryTypeTransferWithAuthorization,
		Message: map[string]string{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
		HumanAmount: humanAmount,
		PayTo:       pay.accepted.PayTo,
		Network:     pay.accepted.Network,
	}, nil
}

// Complete looks up sessionID, removes it atomically (one-shot), and
// replays the retry with the caller-supplied signature (spec.md §4.6.3).
func (b *Broker) Complete(sessionID, signature string) (*Result, error) {
	session, err := b.takeSession(sessionID)
	if err != nil {
		return nil, err
	}

	req, err := rebuildRequest(session.req)
	if err != nil {
		b.failTx(session.txRecordID, session.service, session.humanAmount, err)
		return nil, err
	}

	pay := &payment{accepted: session.accepted, doc: session.doc, service: session.service}
	return b.retryWithSignature(req, pay, session.auth, signature, session.txRecordID, session.humanAmount)
}

// takeSession removes and returns the session for id if present and not
// expired; an expired session is removed and its ledger entry marked
// failed before returning session-not-found (spec.md §4.6.3/§8 P7).
func (b *Broker) takeSession(id string) (*PaymentSession, error) {
	b.mu.Lock()
	session, ok := b.sessions[id]
	if ok {
		delete(b.sessions, id)
	}
	b.mu.Unlock()

	if !ok {
		return nil, brokererr.New(brokererr.KindSessionNotFound, "payment session not found")
	}

	if time.Now().Unix() > session.expiresAt {
		b.expireSession(session)
		return nil, brokererr.New(brokererr.KindSessionNotFound, "payment session not found")
	}

	return session, nil
}

func (b *Broker) expireSession(session *PaymentSession) {
	reason := sessionExpiredReason
	status := store.TxFailed
	_, _ = b.ledger.Update(session.txRecordID, ledger.UpdatePatch{Status: &status, Reason: &reason})
	b.publishAudit(session.txRecordID, session.service, session.humanAmount, status)
}

// sweepLoop expires stale sessions every 60 seconds (spec.md §4.6.3). It
// serializes through the same mutex as Complete, so a racing Complete
// either wins before the sweep or observes session-not-found (spec.md §5).
func (b *Broker) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.sweepOnce()
		}
	}
}

func (b *Broker) sweepOnce() {
	now := time.Now().Unix()
	var expired []*PaymentSession

	b.mu.Lock()
	for id, session := range b.sessions {
		if now > session.expiresAt {
			expired = append(expired, session)
			delete(b.sessions, id)
		}
	}
	b.mu.Unlock()

	for _, session := range expired {
		b.expireSession(session)
	}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func snapshotRequest(rawURL string, opts RequestOptions) requestSnapshot {
	headers := map[string][]string{}
	for k, v := range opts.Headers {
		headers[k] = append([]string{}, v...)
	}
	method := opts.Method
	if method == "" {
		method = "GET"
	}
	return requestSnapshot{url: rawURL, method: method, headers: headers, body: append([]byte(nil), opts.Body...)}
}

func rebuildRequest(snap requestSnapshot) (*http.Request, error) {
	var bodyReader io.Reader
	if len(snap.body) > 0 {
		bodyReader = bytes.NewReader(snap.body)
	}
	req, err := http.NewRequest(snap.method, snap.url, bodyReader)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindValidation, err, "cannot rebuild session request")
	}
	for k, vals := range snap.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func domainMap(cfg chain.Config) map[string]interface{} {
	return map[string]interface{}{
		"name":              cfg.USDCName,
		"version":           cfg.USDCVersion,
		"chainId":           cfg.ChainID,
		"verifyingContract": cfg.USDCAddress.Hex(),
	}
}
