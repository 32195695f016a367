package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(v *Verifier, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Middleware(v))
	handlers := append(extra, func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		caller, ok := GetCaller(c)
		c.JSON(http.StatusOK, gin.H{"caller": caller.Hex(), "authenticated": ok, "body": string(body)})
	})
	r.POST("/echo", handlers...)
	return r
}

func TestMiddleware_SignedRequestSetsCallerAndKeepsBody(t *testing.T) {
	now := time.Now()
	body := []byte(`{"hello":"world"}`)
	req, addr := signedRequest(t, http.MethodPost, "/echo", body, now)

	w := httptest.NewRecorder()
	newRouter(NewVerifier(time.Minute)).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), addr)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)
	assert.Contains(t, w.Body.String(), `hello`)
}

func TestMiddleware_UnsignedPassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader([]byte(`{}`)))
	newRouter(NewVerifier(time.Minute)).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)
}

func TestMiddleware_BadSignatureRejected(t *testing.T) {
	req, _ := signedRequest(t, http.MethodPost, "/echo", []byte(`{}`), time.Now())
	req.Header.Set(HeaderSignature, "0xdeadbeef")

	w := httptest.NewRecorder()
	newRouter(NewVerifier(time.Minute)).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth(t *testing.T) {
	r := newRouter(NewVerifier(time.Minute), RequireAuth())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req, _ := signedRequest(t, http.MethodPost, "/echo", nil, time.Now())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireOwner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	ownerFn := func(context.Context) (common.Address, error) { return owner, nil }
	r := newRouter(NewVerifier(time.Minute), RequireOwner(ownerFn))

	req := httptest.NewRequest(http.MethodPost, "/echo", nil)
	require.NoError(t, SignRequest(req, key, nil, time.Now()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	other, _ := signedRequest(t, http.MethodPost, "/echo", nil, time.Now())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, other)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireOwner_LookupFails(t *testing.T) {
	failing := func(context.Context) (common.Address, error) { return common.Address{}, errors.New("db down") }
	r := newRouter(NewVerifier(time.Minute), RequireOwner(failing))

	req, _ := signedRequest(t, http.MethodPost, "/echo", nil, time.Now())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
