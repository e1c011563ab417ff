package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func signedBatch(t *testing.T, n int) []SignedTransaction {
	t.Helper()
	signer := newTestSigner(t)
	out := make([]SignedTransaction, 0, n)
	for i := 0; i < n; i++ {
		tx := newTestTransfer()
		tx.RecipientAddress = tx.RecipientAddress + string(rune('A'+i))
		signed, err := signer.Sign(tx, testGenHash)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		out = append(out, signed)
	}
	return out
}

func TestDelegateAllAnnouncesEveryTransaction(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/transactions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Payload string `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Payload == "" {
			t.Errorf("bad announce body: %v", err)
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Nodes: []string{server.URL}}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.DelegateAll(context.Background(), signedBatch(t, 3)); err != nil {
		t.Fatalf("delegateAll: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("announced %d times, want 3", got)
	}
}

func TestDelegateAllEmptyBatch(t *testing.T) {
	client, err := NewClient(ClientConfig{Nodes: []string{"http://127.0.0.1:1"}}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.DelegateAll(context.Background(), nil); err != nil {
		t.Fatalf("empty batch must be a no-op, got %v", err)
	}
}

func TestDelegateAllFailsOverToNextNode(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	var goodCalls int32
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&goodCalls, 1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer good.Close()

	client, err := NewClient(ClientConfig{Nodes: []string{bad.URL, good.URL}, MaxTrials: 2}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.DelegateAll(context.Background(), signedBatch(t, 2)); err != nil {
		t.Fatalf("delegateAll with failover: %v", err)
	}
	if got := atomic.LoadInt32(&goodCalls); got != 2 {
		t.Fatalf("healthy node received %d announcements, want 2", got)
	}
}

func TestDelegateAllGivesUpAfterMaxTrials(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Nodes: []string{server.URL}, MaxTrials: 2}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	err = client.DelegateAll(context.Background(), signedBatch(t, 1))
	if !errors.Is(err, ErrTooManyTrials) {
		t.Fatalf("error = %v, want ErrTooManyTrials", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("server hit %d times, want 2", got)
	}
}

func TestTransactionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transactionStatus/confirmed-hash":
			json.NewEncoder(w).Encode(map[string]string{"group": "confirmed"})
		case "/transactionStatus/pending-hash":
			json.NewEncoder(w).Encode(map[string]string{"group": "unconfirmed"})
		case "/transactionStatus/failed-hash":
			json.NewEncoder(w).Encode(map[string]string{"group": "failed", "code": "Failure_Core_Insufficient_Balance"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Nodes: []string{server.URL}}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	cases := []struct {
		hash string
		want TxStatus
	}{
		{"confirmed-hash", StatusConfirmed},
		{"pending-hash", StatusUnconfirmed},
		{"failed-hash", StatusFailed},
		{"unknown-hash", StatusUnknown},
	}
	for _, tc := range cases {
		got, err := client.TransactionStatus(context.Background(), tc.hash)
		if err != nil {
			t.Fatalf("status %s: %v", tc.hash, err)
		}
		if got != tc.want {
			t.Fatalf("status %s = %s, want %s", tc.hash, got, tc.want)
		}
	}
}
