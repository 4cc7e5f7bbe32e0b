// Package broker implements the x402 negotiation/retry engine (spec.md
// §4.6): single-shot fetch for server-signable adapters, and a two-phase
// prepare/complete flow for externally-signing (browser) adapters, backed
// by a process-local payment-session table with a periodic sweeper.
//
// Grounded on the retrieved x402 wallet reference code's payload shapes
// (other_examples/cf7d2285_..._wallet-x402.go.go) and its use of
// go-ethereum's signer/core/apitypes for EIP-712 hashing, which
// wallet.Adapter already performs on the broker's behalf.
package broker

import (
	"net/http"

	"github.com/clawlet/broker/chain"
)

// PaymentRequirements is one entry of a 402 document's "accepts" array
// (spec.md §6).
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// paymentRequiredDoc is the 402 response body/header document (spec.md §6).
type paymentRequiredDoc struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Resource    string                `json:"resource,omitempty"`
}

// authorization is the ERC-3009 TransferWithAuthorization payload, sent
// with every integer field as a decimal string (spec.md §6).
type authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// paymentPayload is the retry request's decoded PAYMENT-SIGNATURE/X-PAYMENT body.
type paymentPayload struct {
	X402Version int                 `json:"x402Version"`
	Resource    string              `json:"resource,omitempty"`
	Accepted    PaymentRequirements `json:"accepted"`
	Payload     signedPayload       `json:"payload"`
}

type signedPayload struct {
	Signature     string        `json:"signature"`
	Authorization authorization `json:"authorization"`
}

// receiptDoc is the server's payment-response/x-payment-response document.
type receiptDoc struct {
	Transaction string `json:"transaction"`
	TxHash      string `json:"txHash"`
}

func (r receiptDoc) hash() *string {
	if r.Transaction != "" {
		h := r.Transaction
		return &h
	}
	if r.TxHash != "" {
		h := r.TxHash
		return &h
	}
	return nil
}

// RequestOptions describes the upstream request to negotiate/fetch.
type RequestOptions struct {
	Method  string
	Headers http.Header
	Body    []byte
	Reason  string
}

// Passthrough is returned unchanged when the upstream response isn't a 402.
type Passthrough struct {
	Status   int
	Headers  http.Header
	BodyText string
}

// payment is the private result of negotiation, consumed by Fetch/Prepare.
type payment struct {
	accepted   PaymentRequirements
	doc        paymentRequiredDoc
	service    string
	passthrough *Passthrough
}

// PaymentInfo is the settled-payment summary in a Result.
type PaymentInfo struct {
	TxHash *string `json:"txHash"`
	Amount string  `json:"amount"`
	PayTo  string  `json:"payTo"`
}

// Result is the normalized envelope every payment operation returns
// (spec.md §7): negotiation/signing failures surface as
// {status:0, error, body:null, payment:null}.
type Result struct {
	Status  int          `json:"status"`
	Headers http.Header  `json:"headers,omitempty"`
	Body    *string      `json:"body"`
	Payment *PaymentInfo `json:"payment"`
	Error   string       `json:"error,omitempty"`
}

// ErrorResult builds the {status:0, error, body:null, payment:null}
// envelope for a negotiation or signing failure (spec.md §7).
func ErrorResult(err error) *Result {
	return &Result{Status: 0, Body: nil, Payment: nil, Error: err.Error()}
}

// SessionDescriptor is what Prepare returns to a browser-signing caller
// (spec.md §4.6.3).
type SessionDescriptor struct {
	SessionID   string                     `json:"sessionId"`
	Domain      map[string]interface{}     `json:"domain"`
	Types       map[string][]chain.Field   `json:"types"`
	PrimaryType string                     `json:"primaryType"`
	Message     map[string]string          `json:"message"`
	HumanAmount string                     `json:"humanAmount"`
	PayTo       string                     `json:"payTo"`
	Network     string                     `json:"network"`
}
