package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTestTx(t *testing.T) *types.Transaction {
	t.Helper()
	return types.NewTx(&types.LegacyTx{Nonce: 0, To: nil, Value: big.NewInt(0), Gas: 21000, GasPrice: big.NewInt(1), Data: nil})
}

func TestHTTPBundleRelay_SendsAuthorizedRequest(t *testing.T) {
	var gotAuth string
	var gotBody bundleRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	relay := NewHTTPBundleRelay(server.URL, "secret-token")
	err := relay.SendBundle(context.Background(), []*types.Transaction{signedTestTx(t)}, 100)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, uint64(100), gotBody.TargetBlock)
	assert.Len(t, gotBody.Transactions, 1)
}

func TestHTTPBundleRelay_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	relay := NewHTTPBundleRelay(server.URL, "")
	err := relay.SendBundle(context.Background(), []*types.Transaction{signedTestTx(t)}, 1)
	assert.Error(t, err)
}

func TestHTTPPreconfirmer_SubmitAndAwaitAck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body preconfRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.Transaction)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	preconf := NewHTTPPreconfirmer(server.URL)
	err := preconf.SubmitAndAwaitAck(context.Background(), signedTestTx(t))
	assert.NoError(t, err)
}

func TestHTTPPreconfirmer_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	preconf := NewHTTPPreconfirmer(server.URL)
	err := preconf.SubmitAndAwaitAck(context.Background(), signedTestTx(t))
	assert.Error(t, err)
}
