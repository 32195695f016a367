package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betdapp/socialbets-smartcontracts/internal/auth"
	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var milliEther = big.NewInt(1e15)

type testEnv struct {
	srv      *Server
	owner    *ecdsa.PrivateKey
	alice    *ecdsa.PrivateKey
	mediator common.Address
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func addrOf(k *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(k.PublicKey)
}

// testConfig returns a minimal in-memory config.
func testConfig(owner common.Address, mediator common.Address) *config.Config {
	return &config.Config{
		Port:                   "0",
		Env:                    "development",
		LogLevel:               "error",
		LogFormat:              "text",
		OwnerAddress:           owner,
		Fee:                    100,
		MinBetValue:            new(big.Int).Set(milliEther),
		DefaultMediatorFee:     100,
		DefaultMediatorAddress: mediator,
		MediationTimeLimit:     bets.DefaultMediationTimeLimit,
		ReconcileInterval:      time.Hour,
		AuthMaxSkew:            5 * time.Minute,
		RateLimitRPM:           6000,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{owner: newKey(t), alice: newKey(t), mediator: addrOf(newKey(t))}
	s, err := New(testConfig(addrOf(env.owner), env.mediator), WithDrainDelay(0))
	require.NoError(t, err)
	t.Cleanup(func() { s.rateLimiter.Stop() })
	env.srv = s
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, key *ecdsa.PrivateKey) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != nil {
		require.NoError(t, auth.SignRequest(req, key, raw, time.Now()))
	}
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestLivenessAndReadiness(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", nil, nil).Code)
	// not ready until Run
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/health/ready", nil, nil).Code)

	env.srv.ready.Store(true)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", nil, nil).Code)
}

func TestInfoAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"storage":"memory"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "socialbets_http_requests_total")
}

func TestRequestIDPropagated(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/params", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

// ---------------------------------------------------------------------------
// Auth wiring
// ---------------------------------------------------------------------------

func TestProtectedRoutesRequireSignature(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/bets", map[string]any{}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBadSignatureRejected(t *testing.T) {
	env := newTestEnv(t)

	raw := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/bets", bytes.NewReader(raw))
	require.NoError(t, auth.SignRequest(req, env.alice, []byte(`{"tampered":true}`), time.Now()))
	w := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireOwner(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/admin/pause", nil, env.alice)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/v1/admin/pause", nil, env.owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	p, err := env.srv.Bets().Params(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Paused)
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestDepositCreateAndRead(t *testing.T) {
	env := newTestEnv(t)
	alice := addrOf(env.alice)

	deposit := map[string]string{
		"address": alice.Hex(),
		"amount":  new(big.Int).Mul(big.NewInt(10000), milliEther).String(),
		"txHash":  common.HexToHash("0x01").Hex(),
	}
	w := env.do(t, http.MethodPost, "/v1/admin/deposits", deposit, env.owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	first := new(big.Int).Mul(big.NewInt(500), milliEther)
	second := new(big.Int).Mul(big.NewInt(1500), milliEther)
	value := new(big.Int).Add(first, bets.CalculateFee(first, second, 100))
	now := time.Now()
	create := bets.CreateBetRequest{
		Metadata:             "Will the match end in a draw?",
		FirstBetValue:        first.String(),
		SecondBetValue:       second.String(),
		SecondPartyTimeframe: now.Add(24 * time.Hour).Unix(),
		ResultTimeframe:      now.Add(48 * time.Hour).Unix(),
		Value:                value.String(),
	}
	w = env.do(t, http.MethodPost, "/v1/bets", create, env.alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Receipt bets.ReceiptResponse `json:"receipt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.Receipt.BetID

	w = env.do(t, http.MethodGet, "/v1/bets/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bet bets.BetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bet))
	assert.Equal(t, alice.Hex(), bet.FirstParty)
	assert.Equal(t, env.mediator.Hex(), bet.Mediator)
	assert.Equal(t, "waiting_party2", bet.State)

	w = env.do(t, http.MethodGet, "/v1/addresses/"+alice.Hex()+"/bets/first-party", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = env.do(t, http.MethodGet, "/v1/addresses/"+alice.Hex()+"/balance", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bal struct {
		Available string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	want := new(big.Int).Sub(new(big.Int).Mul(big.NewInt(10000), milliEther), value)
	assert.Equal(t, want.String(), bal.Available)

	// custody covers the locked stake and fee
	report, err := env.srv.reconciler.RunAll(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Mismatch)
}

func TestShutdownWithoutRun(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.srv.Shutdown())
	assert.False(t, env.srv.ready.Load())
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://bets:***@db:5432/bets", maskDSN("postgres://bets:secret@db:5432/bets"))
	assert.Equal(t, "***", maskDSN("://bad"))
}
