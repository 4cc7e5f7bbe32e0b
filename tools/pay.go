package tools

import (
	"encoding/json"
	"net/http"

	"github.com/clawlet/broker/broker"
	"github.com/clawlet/broker/brokererr"
)

// PayInput is the `pay`/`payPrepare` operations' input (spec.md §4.7).
type PayInput struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

func (in PayInput) toRequestOptions() broker.RequestOptions {
	headers := http.Header{}
	for k, v := range in.Headers {
		headers.Set(k, v)
	}
	return broker.RequestOptions{Method: in.Method, Headers: headers, Body: []byte(in.Body), Reason: in.Reason}
}

func opPay(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in PayInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.URL == "" {
		return nil, brokererr.New(brokererr.KindValidation, "url is required")
	}
	result, err := c.Broker.Fetch(in.URL, in.toRequestOptions())
	if err != nil {
		return broker.ErrorResult(err), nil
	}
	return result, nil
}

func opPayPrepare(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in PayInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.URL == "" {
		return nil, brokererr.New(brokererr.KindValidation, "url is required")
	}
	return c.Broker.Prepare(in.URL, in.toRequestOptions())
}

// PayCompleteInput is the `payComplete` operation's input.
type PayCompleteInput struct {
	SessionID string `json:"sessionId"`
	Signature string `json:"signature"`
}

func opPayComplete(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in PayCompleteInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.SessionID == "" || in.Signature == "" {
		return nil, brokererr.New(brokererr.KindValidation, "sessionId and signature are required")
	}
	result, err := c.Broker.Complete(in.SessionID, in.Signature)
	if err != nil {
		return broker.ErrorResult(err), nil
	}
	return result, nil
}
