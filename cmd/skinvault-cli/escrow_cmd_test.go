package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func withTestServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prevBase, prevKey := apiBase, newIdempotencyKey
	apiBase = srv.URL
	newIdempotencyKey = func() string { return "test-key" }
	t.Cleanup(func() {
		apiBase = prevBase
		newIdempotencyKey = prevKey
	})
}

func TestEscrowCreateSendsPayload(t *testing.T) {
	var got map[string]any
	var gotKey string
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/escrows" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.Header.Get("X-Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"digest":"0xabc"}`))
	})

	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{
		"create",
		"--buyer", "0xb",
		"--seller", "0xs",
		"--asset-id", "123",
		"--asset-name", "Knife",
		"--trade-url", "https://steamcommunity.com/tradeoffer/new/?partner=1&token=abc",
		"--price", "2.5",
	}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if gotKey != "test-key" {
		t.Errorf("idempotency key = %q", gotKey)
	}
	if got["buyer"] != "0xb" || got["assetId"] != "123" || got["price"] != "2.5" {
		t.Errorf("unexpected payload: %v", got)
	}
	if !strings.Contains(stdout.String(), "0xabc") {
		t.Errorf("stdout missing digest: %s", stdout.String())
	}
}

func TestEscrowCreateMissingFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"create", "--buyer", "0xb"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "--seller is required") {
		t.Errorf("stderr: %s", stderr.String())
	}
}

func TestEscrowCancelPrintsErrorCode(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"transfer has already occurred","code":"transfer_completed"}`))
	})

	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"cancel", "--id", "e1", "--object", "0xe"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "transfer_completed") {
		t.Errorf("stderr: %s", stderr.String())
	}
}

func TestEscrowStatusPositionalID(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/escrows/e9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"transactionId":"e9","status":"deposited"}`))
	})

	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"status", "e9"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "deposited") {
		t.Errorf("stdout: %s", stdout.String())
	}
}

func TestUnknownSubcommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"bogus"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown escrow subcommand") {
		t.Errorf("stderr: %s", stderr.String())
	}
}
