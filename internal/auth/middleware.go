package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// ContextKeyCaller is the gin context key holding the authenticated common.Address.
const ContextKeyCaller = "authCaller"

// Middleware authenticates signed requests and stores the caller.
// Unsigned requests pass through; requests with bad signatures are rejected.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(HeaderSignature) == "" {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_body",
					"message": "Failed to read request body",
				})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		caller, err := v.Verify(c.Request, body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			return
		}
		c.Set(ContextKeyCaller, caller)
		c.Next()
	}
}

// RequireAuth rejects requests without an authenticated caller.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetCaller(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Signed request required. Set " + HeaderAddress + ", " + HeaderTimestamp + " and " + HeaderSignature + ".",
			})
			return
		}
		c.Next()
	}
}

// OwnerFunc returns the current admin address.
type OwnerFunc func(ctx context.Context) (common.Address, error)

// RequireOwner rejects callers other than the current owner.
func RequireOwner(owner OwnerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Signed request required.",
			})
			return
		}
		want, err := owner(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "owner_unavailable",
				"message": "Could not determine the owner",
			})
			return
		}
		if caller != want {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Only the owner may call this endpoint.",
			})
			return
		}
		c.Next()
	}
}

// GetCaller returns the authenticated caller, if any.
func GetCaller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(ContextKeyCaller)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

// IsAuthError reports whether err came from signature verification.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) || errors.Is(err, ErrBadSignature) ||
		errors.Is(err, ErrAddressMismatch) || errors.Is(err, ErrStaleTimestamp) || errors.Is(err, ErrReplayed)
}
