package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/sealedrps/internal/encryption"
	"github.com/fastprodman/sealedrps/internal/encryption/sealed"
	"github.com/fastprodman/sealedrps/internal/match"
)

var (
	contract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// fakeRelayer serves the relayer protocol on top of a local coprocessor.
func fakeRelayer(t *testing.T, cp *sealed.Coprocessor) *httptest.Server {
	t.Helper()

	writeErr := func(w http.ResponseWriter, err error) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, encryption.ErrUnauthorized):
			status = http.StatusForbidden
		case errors.Is(err, encryption.ErrInvalidHandle):
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/encrypt", func(w http.ResponseWriter, r *http.Request) {
		var req encryptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		c, err := cp.EncryptMove(r.Context(), req.Contract, req.Sender, match.Move(req.Value))
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(encryptResponse{Handle: c.Handle, Proof: c.Proof})
	})
	mux.HandleFunc("/v1/decrypt", func(w http.ResponseWriter, r *http.Request) {
		var req decryptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		plain, err := cp.Decrypt(r.Context(), req.Handle, req.Contract, req.Requester)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(decryptResponse{Plaintext: hexutil.Bytes(plain)})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestClient_RoundTrip(t *testing.T) {
	t.Parallel()

	cp, err := sealed.New([]byte("relayer"))
	require.NoError(t, err)

	srv := fakeRelayer(t, cp)
	c := New(srv.URL+"/", 2*time.Second)
	ctx := context.Background()

	commit, err := c.EncryptMove(ctx, contract, alice, match.Paper)
	require.NoError(t, err)
	require.NoError(t, cp.VerifyInput(commit.Handle, commit.Proof, contract, alice))

	got, err := encryption.DecryptMove(ctx, c, commit.Handle, contract, alice)
	require.NoError(t, err)
	require.Equal(t, match.Paper, got)
}

func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	cp, err := sealed.New([]byte("relayer"))
	require.NoError(t, err)

	srv := fakeRelayer(t, cp)
	c := New(srv.URL, 2*time.Second)
	ctx := context.Background()

	commit, err := c.EncryptMove(ctx, contract, alice, match.Rock)
	require.NoError(t, err)

	_, err = c.Decrypt(ctx, commit.Handle, contract, bob)
	require.ErrorIs(t, err, encryption.ErrUnauthorized)

	_, err = c.Decrypt(ctx, common.HexToHash("0x99"), contract, alice)
	require.ErrorIs(t, err, encryption.ErrInvalidHandle)

	cp.SetAvailable(false)
	_, err = c.EncryptMove(ctx, contract, alice, match.Rock)
	require.ErrorIs(t, err, encryption.ErrUnavailable)
}

func TestClient_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, 500*time.Millisecond)

	_, err := c.EncryptMove(context.Background(), contract, alice, match.Rock)
	require.ErrorIs(t, err, encryption.ErrUnavailable)
}
