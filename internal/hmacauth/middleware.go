package hmacauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	headerSignature = "X-Request-Signature"
	headerTimestamp = "X-Request-Timestamp"
	headerNonce     = "X-Request-Nonce"

	defaultNonceCapacity = 4096
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrMissingNonce     = errors.New("missing request nonce")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrNonceReplayed    = errors.New("request nonce already used")
)

// Verifier authenticates requests signed with a shared secret. The signature
// covers timestamp, nonce and body; a bounded nonce cache rejects replays
// inside the allowed timestamp window.
type Verifier struct {
	Secret  string
	MaxSkew time.Duration
	Now     func() time.Time

	nonceMu sync.Mutex
	nonces  map[string]time.Time
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := v.verify(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (v *Verifier) verify(r *http.Request) error {
	if v.Secret == "" {
		return nil
	}

	sig := r.Header.Get(headerSignature)
	if sig == "" {
		return ErrMissingSignature
	}
	tsHeader := r.Header.Get(headerTimestamp)
	if tsHeader == "" {
		return ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return ErrMissingTimestamp
	}
	nonce := strings.TrimSpace(r.Header.Get(headerNonce))
	if nonce == "" {
		return ErrMissingNonce
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	reqTime := time.Unix(ts, 0)
	if now.Sub(reqTime) > v.MaxSkew || reqTime.Sub(now) > v.MaxSkew {
		return ErrStaleTimestamp
	}

	bodyBytes, err := readBody(r)
	if err != nil {
		return err
	}

	expected := computeSignature(v.Secret, tsHeader, nonce, bodyBytes)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}

	return v.rememberNonce(nonce, now)
}

// rememberNonce records a nonce for the skew window, rejecting reuse. The
// cache is pruned on every insert and capped so a flood of unique nonces
// cannot grow it without bound.
func (v *Verifier) rememberNonce(nonce string, now time.Time) error {
	v.nonceMu.Lock()
	defer v.nonceMu.Unlock()
	if v.nonces == nil {
		v.nonces = make(map[string]time.Time)
	}
	cutoff := now.Add(-2 * v.MaxSkew)
	for n, seen := range v.nonces {
		if seen.Before(cutoff) {
			delete(v.nonces, n)
		}
	}
	if _, used := v.nonces[nonce]; used {
		return ErrNonceReplayed
	}
	if len(v.nonces) >= defaultNonceCapacity {
		// Window is saturated; refuse rather than silently allow replays.
		return errors.New("nonce window saturated, retry later")
	}
	v.nonces[nonce] = now
	return nil
}

func computeSignature(secret, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(nonce))
	mac.Write(body)
	return strings.ToLower(hex.EncodeToString(mac.Sum(nil)))
}

// Sign computes the signature a client should attach for the given
// timestamp, nonce and body. Exposed for clients and tests.
func Sign(secret, timestamp, nonce string, body []byte) string {
	return computeSignature(secret, timestamp, nonce, body)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	return body, nil
}
