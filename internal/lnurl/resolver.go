// Package lnurl resolves a "name@domain" Lightning address to a bolt11
// invoice via the two-hop LNURL-pay convention: a GET to
// .well-known/lnurlp/<name> for a callback URL, then a GET to that
// callback with the amount in millisats. The resolver is a
// *http.Client with a fixed timeout and no base URL, since every call
// targets a different domain.
package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ads-marketplace/backend/internal/apperr"
)

type Resolver struct {
	httpClient *http.Client
	log        *zap.Logger
}

func NewResolver(log *zap.Logger) *Resolver {
	return &Resolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

type payParams struct {
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	Tag         string `json:"tag"`
}

type payResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Resolve turns "name@domain" plus a requested amount (msat) into a
// bolt11 invoice string. Any {status:"ERROR", reason} response along
// the way, or an unreachable/malformed endpoint, is a 400 connection
// kind failure; the caller cannot retry its way out of it.
func (r *Resolver) Resolve(ctx context.Context, address string, amountMsat int64) (string, error) {
	name, domain, err := splitAddress(address)
	if err != nil {
		return "", apperr.Validationf("%s", err.Error())
	}

	params, err := r.fetchPayParams(ctx, name, domain)
	if err != nil {
		return "", err
	}
	if params.Status == "ERROR" {
		return "", apperr.ConnectionRejectedf(nil, "lnurl: %s", params.Reason)
	}
	if amountMsat < params.MinSendable || amountMsat > params.MaxSendable {
		return "", apperr.ConnectionRejectedf(nil, "lnurl: amount %d msat outside allowed range [%d,%d]", amountMsat, params.MinSendable, params.MaxSendable)
	}

	invoice, err := r.fetchInvoice(ctx, params.Callback, amountMsat)
	if err != nil {
		return "", err
	}
	return invoice, nil
}

func splitAddress(address string) (name, domain string, err error) {
	parts := strings.SplitN(address, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid lightning address %q", address)
	}
	return parts[0], parts[1], nil
}

func (r *Resolver) fetchPayParams(ctx context.Context, name, domain string) (*payParams, error) {
	url := fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.ConnectionRejectedf(err, "lnurl: could not build lnurlp request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ConnectionRejectedf(err, "lnurl: address domain unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.ConnectionRejectedf(nil, "lnurl: lnurlp endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var params payParams
	if err := json.NewDecoder(resp.Body).Decode(&params); err != nil {
		return nil, apperr.ConnectionRejectedf(err, "lnurl: invalid lnurlp response")
	}
	return &params, nil
}

func (r *Resolver) fetchInvoice(ctx context.Context, callback string, amountMsat int64) (string, error) {
	sep := "?"
	if strings.Contains(callback, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%samount=%d", callback, sep, amountMsat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperr.ConnectionRejectedf(err, "lnurl: could not build callback request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", apperr.ConnectionRejectedf(err, "lnurl: callback unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", apperr.ConnectionRejectedf(nil, "lnurl: callback returned %d: %s", resp.StatusCode, string(body))
	}

	var pr payResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", apperr.ConnectionRejectedf(err, "lnurl: invalid callback response")
	}
	if pr.Status == "ERROR" {
		return "", apperr.ConnectionRejectedf(nil, "lnurl: %s", pr.Reason)
	}
	if pr.PR == "" {
		return "", apperr.ConnectionRejectedf(nil, "lnurl: callback response missing invoice")
	}
	return pr.PR, nil
}
