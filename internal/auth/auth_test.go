package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/presencectl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			log.Debug().Str("stored", tc.stored).Str("input", tc.input).Msg("auth/static-token")
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("unexpected parse: %q %v", tok, ok)
	}
	if tok, ok := BearerToken("bearer   abc "); !ok || tok != "abc" {
		t.Fatalf("unexpected parse: %q %v", tok, ok)
	}
	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer  "} {
		if _, ok := BearerToken(header); ok {
			t.Fatalf("expected %q rejected", header)
		}
	}
}

func TestRequireBearer(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/status", RequireBearer(StaticToken{Token: "secret"}), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Bearer secret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("header=%q expected %d, got %d", tc.header, tc.want, rec.Code)
		}
	}
}
