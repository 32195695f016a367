package auth

import (
	"bytes"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedRequest(t *testing.T, method, target string, body []byte, at time.Time) (*http.Request, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, SignRequest(req, key, body, at))
	return req, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	msg := Message("post", "/v1/bets", []byte(`{"a":1}`), 1700000000)
	sig, err := Sign(key, msg)
	require.NoError(t, err)

	got, err := Recover(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), got)
}

func TestRecover_Malformed(t *testing.T) {
	_, err := Recover([]byte("x"), "0x1234")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = Recover([]byte("x"), "not-hex")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestMessage_BindsEveryPart(t *testing.T) {
	base := Message("POST", "/v1/bets", []byte("body"), 1)
	assert.NotEqual(t, base, Message("GET", "/v1/bets", []byte("body"), 1))
	assert.NotEqual(t, base, Message("POST", "/v1/bets?x=1", []byte("body"), 1))
	assert.NotEqual(t, base, Message("POST", "/v1/bets", []byte("other"), 1))
	assert.NotEqual(t, base, Message("POST", "/v1/bets", []byte("body"), 2))
	assert.Equal(t, base, Message("post", "/v1/bets", []byte("body"), 1))
}

func TestVerify_Valid(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"answer":"first"}`)
	req, addr := signedRequest(t, http.MethodPost, "/v1/bets/0xabc/vote", body, now)

	v := NewVerifier(time.Minute).WithClock(func() time.Time { return now })
	got, err := v.Verify(req, body)
	require.NoError(t, err)
	assert.Equal(t, addr, got.Hex())
}

func TestVerify_MissingHeaders(t *testing.T) {
	v := NewVerifier(0)
	_, err := v.Verify(httptest.NewRequest(http.MethodGet, "/v1/bets", nil), nil)
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerify_TamperedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	req, _ := signedRequest(t, http.MethodPost, "/v1/bets", []byte(`{"v":"1"}`), now)

	v := NewVerifier(time.Minute).WithClock(func() time.Time { return now })
	_, err := v.Verify(req, []byte(`{"v":"2"}`))
	assert.ErrorIs(t, err, ErrAddressMismatch)
}

func TestVerify_WrongAddressHeader(t *testing.T) {
	now := time.Unix(1700000000, 0)
	req, _ := signedRequest(t, http.MethodGet, "/v1/me", nil, now)
	req.Header.Set(HeaderAddress, "0x00000000000000000000000000000000000000AA")

	v := NewVerifier(time.Minute).WithClock(func() time.Time { return now })
	_, err := v.Verify(req, nil)
	assert.ErrorIs(t, err, ErrAddressMismatch)
}

func TestVerify_Stale(t *testing.T) {
	signedAt := time.Unix(1700000000, 0)
	req, _ := signedRequest(t, http.MethodGet, "/v1/me", nil, signedAt)

	v := NewVerifier(time.Minute).WithClock(func() time.Time { return signedAt.Add(2 * time.Minute) })
	_, err := v.Verify(req, nil)
	assert.ErrorIs(t, err, ErrStaleTimestamp)

	v = NewVerifier(time.Minute).WithClock(func() time.Time { return signedAt.Add(-2 * time.Minute) })
	_, err = v.Verify(req, nil)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestVerify_Replay(t *testing.T) {
	now := time.Unix(1700000000, 0)
	req, _ := signedRequest(t, http.MethodPost, "/v1/ledger/withdraw", []byte(`{}`), now)

	v := NewVerifier(time.Minute).WithClock(func() time.Time { return now })
	_, err := v.Verify(req, []byte(`{}`))
	require.NoError(t, err)

	_, err = v.Verify(req, []byte(`{}`))
	assert.ErrorIs(t, err, ErrReplayed)
	assert.True(t, IsAuthError(err))
}

// resign rewrites the signature header of req through edit.
func resign(t *testing.T, req *http.Request, edit func(sig []byte)) {
	t.Helper()
	sig, err := hexutil.Decode(req.Header.Get(HeaderSignature))
	require.NoError(t, err)
	edit(sig)
	req.Header.Set(HeaderSignature, hexutil.Encode(sig))
}

func TestVerify_ReplayWithRawRecoveryID(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"amount":"1"}`)
	req, _ := signedRequest(t, http.MethodPost, "/v1/ledger/withdraw", body, now)

	v := NewVerifier(time.Minute).WithClock(func() time.Time { return now })
	_, err := v.Verify(req, body)
	require.NoError(t, err)

	resign(t, req, func(sig []byte) { sig[crypto.RecoveryIDOffset] -= 27 })
	_, err = v.Verify(req, body)
	assert.ErrorIs(t, err, ErrReplayed)
}

func TestVerify_RejectsHighS(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"amount":"1"}`)
	req, _ := signedRequest(t, http.MethodPost, "/v1/ledger/withdraw", body, now)

	// (r, n-s, v^1) recovers the same key but is the malleated twin.
	resign(t, req, func(sig []byte) {
		s := new(big.Int).SetBytes(sig[32:64])
		s.Sub(crypto.S256().Params().N, s)
		s.FillBytes(sig[32:64])
		sig[crypto.RecoveryIDOffset] ^= 1
	})

	v := NewVerifier(time.Minute).WithClock(func() time.Time { return now })
	_, err := v.Verify(req, body)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestRecover_RejectsBadRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	msg := Message("POST", "/v1/bets", nil, 1)
	sigHex, err := Sign(key, msg)
	require.NoError(t, err)

	sig, _ := hexutil.Decode(sigHex)
	sig[crypto.RecoveryIDOffset] = 5
	_, err = Recover(msg, hexutil.Encode(sig))
	assert.ErrorIs(t, err, ErrBadSignature)
}
