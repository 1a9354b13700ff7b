package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// HTTPBundleRelay submits a signed bundle to a private relay's HTTP
// bundle-submission endpoint as a JSON array of raw signed transactions,
// in the style of eth_sendBundle.
type HTTPBundleRelay struct {
	url    string
	auth   string
	client *http.Client
}

// NewHTTPBundleRelay builds a RelaySender backed by the standard library
// HTTP client. auth, when non-empty, is sent as a bearer Authorization
// header; some relays accept unauthenticated submission.
func NewHTTPBundleRelay(url, auth string) *HTTPBundleRelay {
	return &HTTPBundleRelay{url: url, auth: auth, client: &http.Client{Timeout: 5 * time.Second}}
}

type bundleRequest struct {
	Transactions []string `json:"transactions"`
	TargetBlock  uint64   `json:"targetBlock"`
}

func (r *HTTPBundleRelay) SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock uint64) error {
	raw := make([]string, len(txs))
	for i, tx := range txs {
		encoded, err := tx.MarshalBinary()
		if err != nil {
			return fmt.Errorf("chain: encode relay transaction %d: %w", i, err)
		}
		raw[i] = hexutil.Encode(encoded)
	}

	body, err := json.Marshal(bundleRequest{Transactions: raw, TargetBlock: targetBlock})
	if err != nil {
		return fmt.Errorf("chain: marshal bundle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: build bundle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.auth != "" {
		req.Header.Set("Authorization", "Bearer "+r.auth)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("chain: send bundle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chain: relay returned status %d", resp.StatusCode)
	}
	return nil
}

// HTTPPreconfirmer submits a single signed transaction to a preconfirmation
// endpoint and blocks on its response as the inclusion acknowledgement.
type HTTPPreconfirmer struct {
	url    string
	client *http.Client
}

// NewHTTPPreconfirmer builds a Preconfirmer backed by the standard library
// HTTP client. The request's context deadline bounds how long it waits for
// an ack.
func NewHTTPPreconfirmer(url string) *HTTPPreconfirmer {
	return &HTTPPreconfirmer{url: url, client: &http.Client{}}
}

type preconfRequest struct {
	Transaction string `json:"transaction"`
}

func (p *HTTPPreconfirmer) SubmitAndAwaitAck(ctx context.Context, tx *types.Transaction) error {
	encoded, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("chain: encode preconfirmation transaction: %w", err)
	}

	body, err := json.Marshal(preconfRequest{Transaction: hexutil.Encode(encoded)})
	if err != nil {
		return fmt.Errorf("chain: marshal preconfirmation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: build preconfirmation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("chain: submit preconfirmation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chain: preconfirmation endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
