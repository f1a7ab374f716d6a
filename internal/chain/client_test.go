package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newRPCServer serves a minimal JSON-RPC endpoint answering eth_chainId with
// the given hex chain ID.
func newRPCServer(t *testing.T, chainIDHex string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method != "eth_chainId" {
			t.Errorf("unexpected rpc method %q", req.Method)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"%s"}`, req.ID, chainIDHex)
	}))
}

func TestVerifyChainID(t *testing.T) {
	server := newRPCServer(t, "0x89")
	defer server.Close()

	client, err := NewClient(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if err := client.VerifyChainID(context.Background(), 137); err != nil {
		t.Fatalf("VerifyChainID(137): %v", err)
	}
}

func TestVerifyChainIDMismatch(t *testing.T) {
	server := newRPCServer(t, "0x1")
	defer server.Close()

	client, err := NewClient(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	err = client.VerifyChainID(context.Background(), 137)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if !strings.Contains(err.Error(), "expected 137") {
		t.Fatalf("unexpected error: %v", err)
	}
}
