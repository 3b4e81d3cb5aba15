// Package relayer talks to a remote encryption relayer over JSON/HTTP.
package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/fastprodman/sealedrps/internal/encryption"
	"github.com/fastprodman/sealedrps/internal/match"
)

var _ encryption.Service = (*Client)(nil)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type encryptRequest struct {
	Contract common.Address `json:"contract"`
	Sender   common.Address `json:"sender"`
	Value    uint8          `json:"value"`
}

type encryptResponse struct {
	Handle common.Hash   `json:"handle"`
	Proof  hexutil.Bytes `json:"proof"`
}

type decryptRequest struct {
	Handle    common.Hash    `json:"handle"`
	Contract  common.Address `json:"contract"`
	Requester common.Address `json:"requester"`
}

type decryptResponse struct {
	Plaintext hexutil.Bytes `json:"plaintext"`
}

func (c *Client) EncryptMove(ctx context.Context, contract, sender common.Address, move match.Move) (match.Commitment, error) {
	if !move.Valid() {
		return match.Commitment{}, fmt.Errorf("encrypt move: %w", match.ErrInvalidMove)
	}

	var out encryptResponse

	err := c.post(ctx, "/v1/encrypt", encryptRequest{Contract: contract, Sender: sender, Value: uint8(move)}, &out)
	if err != nil {
		return match.Commitment{}, fmt.Errorf("encrypt move: %w", err)
	}

	if out.Handle == (common.Hash{}) || len(out.Proof) == 0 {
		return match.Commitment{}, fmt.Errorf("encrypt move: empty commitment: %w", encryption.ErrUnavailable)
	}

	return match.Commitment{Handle: out.Handle, Proof: out.Proof}, nil
}

func (c *Client) Decrypt(ctx context.Context, handle common.Hash, contract, requester common.Address) ([]byte, error) {
	var out decryptResponse

	err := c.post(ctx, "/v1/decrypt", decryptRequest{Handle: handle, Contract: contract, Requester: requester}, &out)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", handle.Hex(), err)
	}

	return out.Plaintext, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", encryption.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", encryption.ErrUnauthorized, readMessage(resp.Body))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", encryption.ErrInvalidHandle, readMessage(resp.Body))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", encryption.ErrUnavailable, resp.StatusCode, readMessage(resp.Body))
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readMessage(resp.Body))
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty response", encryption.ErrUnavailable)
		}

		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func readMessage(r io.Reader) string {
	var e struct {
		Error string `json:"error"`
	}

	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}

	return strings.TrimSpace(string(raw))
}
