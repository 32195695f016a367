package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xabcdefABCDEF1234567890123456789012345678", true},
		{"0x0000000000000000000000000000000000000000", true},
		{"1234567890123456789012345678901234567890", false},
		{"0x12345678901234567890123456789012345678", false},
		{"0x123456789012345678901234567890123456789012", false},
		{"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := IsValidEthAddress(tc.addr); got != tc.valid {
			t.Errorf("IsValidEthAddress(%q) = %v, want %v", tc.addr, got, tc.valid)
		}
	}
}

func TestIsValidBetID(t *testing.T) {
	good := "0x" + strings.Repeat("ab", 32)
	if !IsValidBetID(good) {
		t.Errorf("expected %q to be valid", good)
	}
	for _, bad := range []string{"", "0x", "0x" + strings.Repeat("ab", 31), strings.Repeat("ab", 32), "0x" + strings.Repeat("zz", 32)} {
		if IsValidBetID(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}

func TestIsValidWei(t *testing.T) {
	for _, ok := range []string{"0", "1", "500000000000000000"} {
		if !IsValidWei(ok) {
			t.Errorf("expected %q valid", ok)
		}
	}
	for _, bad := range []string{"", "-1", "1.5", "0x10", strings.Repeat("9", 79)} {
		if IsValidWei(bad) {
			t.Errorf("expected %q invalid", bad)
		}
	}
}

func TestParseAddress(t *testing.T) {
	addr, ok := ParseAddress(" 0xABCDEF1234567890123456789012345678901234 ")
	if !ok {
		t.Fatal("expected valid address")
	}
	if strings.ToLower(addr.Hex()) != "0xabcdef1234567890123456789012345678901234" {
		t.Errorf("unexpected address %s", addr.Hex())
	}
	if _, ok := ParseAddress("nope"); ok {
		t.Error("expected invalid address")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hi\x00there  ", 100); got != "hithere" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	errs := Validate(
		Required("metadata", ""),
		ValidAddress("mediator", "0x123"),
		ValidWei("firstBetValue", "1.5"),
		MaxLength("metadata", "abc", 10),
	)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() != "metadata: is required" {
		t.Errorf("unexpected Error(): %q", errs.Error())
	}
}

func TestParamMiddlewares(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/addresses/:address", AddressParamMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bets/:id", BetIDParamMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		path string
		code int
	}{
		{"/addresses/0x1234567890123456789012345678901234567890", http.StatusOK},
		{"/addresses/0x12", http.StatusBadRequest},
		{"/bets/0x" + strings.Repeat("0f", 32), http.StatusOK},
		{"/bets/42", http.StatusBadRequest},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", tc.path, nil)
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Errorf("GET %s = %d, want %d", tc.path, w.Code, tc.code)
		}
	}
}
