// Package auth authenticates callers by Ethereum signature.
//
// A client signs a canonical description of the request with its account
// key (EIP-191 personal_sign). The server recovers the signer and treats it
// as the caller, the same way a chain treats msg.sender.
package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	HeaderAddress   = "X-Caller-Address"
	HeaderTimestamp = "X-Caller-Timestamp"
	HeaderSignature = "X-Caller-Signature"

	// DefaultMaxSkew is how far a request timestamp may drift from server time.
	DefaultMaxSkew = 5 * time.Minute
)

var (
	ErrMissingSignature = errors.New("missing signature headers")
	ErrBadSignature     = errors.New("invalid signature")
	ErrAddressMismatch  = errors.New("signature does not match address")
	ErrStaleTimestamp   = errors.New("request timestamp outside allowed window")
	ErrReplayed         = errors.New("request signature already used")
)

// Message builds the text a caller signs for one request.
func Message(method, requestURI string, body []byte, timestamp int64) []byte {
	return []byte(fmt.Sprintf("socialbets request\nmethod: %s\npath: %s\nbody: %s\ntimestamp: %d",
		strings.ToUpper(method), requestURI, crypto.Keccak256Hash(body).Hex(), timestamp))
}

// Sign produces a 65-byte personal_sign signature, hex encoded with v in {27,28}.
func Sign(key *ecdsa.PrivateKey, msg []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Recover returns the address that produced sigHex over msg.
func Recover(msg []byte, sigHex string) (common.Address, error) {
	sig, err := decodeSignature(sigHex)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, ErrBadSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// decodeSignature parses a 65-byte signature with v in {0,1} or {27,28}
// and returns it with v in {0,1}. High-s signatures are rejected, so every
// signer and message has exactly one accepted encoding.
func decodeSignature(sigHex string) ([]byte, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, ErrBadSignature
	}
	v := sig[crypto.RecoveryIDOffset]
	if v == 27 || v == 28 {
		v -= 27
	}
	r, s := new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return nil, ErrBadSignature
	}
	sig[crypto.RecoveryIDOffset] = v
	return sig, nil
}

// SignRequest sets the signature headers on req for the given body.
func SignRequest(req *http.Request, key *ecdsa.PrivateKey, body []byte, now time.Time) error {
	ts := now.Unix()
	sig, err := Sign(key, Message(req.Method, req.URL.RequestURI(), body, ts))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// Verifier checks signed requests and remembers recent signatures so a
// captured request cannot be replayed inside the skew window.
type Verifier struct {
	maxSkew time.Duration
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewVerifier creates a verifier. A non-positive maxSkew means DefaultMaxSkew.
func NewVerifier(maxSkew time.Duration) *Verifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &Verifier{maxSkew: maxSkew, now: time.Now, seen: make(map[string]time.Time)}
}

// WithClock overrides the time source.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify authenticates a request whose body has already been read.
func (v *Verifier) Verify(r *http.Request, body []byte) (common.Address, error) {
	addrHex := r.Header.Get(HeaderAddress)
	tsStr := r.Header.Get(HeaderTimestamp)
	sigHex := r.Header.Get(HeaderSignature)
	if addrHex == "" || tsStr == "" || sigHex == "" {
		return common.Address{}, ErrMissingSignature
	}
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, ErrAddressMismatch
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return common.Address{}, ErrStaleTimestamp
	}
	now := v.now()
	sent := time.Unix(ts, 0)
	if sent.Before(now.Add(-v.maxSkew)) || sent.After(now.Add(v.maxSkew)) {
		return common.Address{}, ErrStaleTimestamp
	}

	sig, err := decodeSignature(sigHex)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(accounts.TextHash(Message(r.Method, r.URL.RequestURI(), body, ts)), sig)
	if err != nil {
		return common.Address{}, ErrBadSignature
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer != common.HexToAddress(addrHex) {
		return common.Address{}, ErrAddressMismatch
	}

	// Keyed on r||s: v is implied by the signer and cannot open a second slot.
	if err := v.remember(hexutil.Encode(sig[:64]), now); err != nil {
		return common.Address{}, err
	}
	return signer, nil
}

func (v *Verifier) remember(sig string, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if exp, ok := v.seen[sig]; ok && now.Before(exp) {
		return ErrReplayed
	}
	if len(v.seen) > 10000 {
		for k, exp := range v.seen {
			if !now.Before(exp) {
				delete(v.seen, k)
			}
		}
	}
	// A signature is only acceptable while its timestamp is in the window,
	// so it can be forgotten after twice the skew.
	v.seen[sig] = now.Add(2 * v.maxSkew)
	return nil
}
