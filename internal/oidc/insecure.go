package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
)

type claimsToken map[string]interface{}

func (t claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// InsecureVerifier reads the claims of a JWT WITHOUT checking its
// signature. It still rejects tokens without a subject or past their exp.
// Only for integration runs (ALLOW_INSECURE_TOKEN=true).
type InsecureVerifier struct {
	now func() time.Time
}

func NewInsecureVerifier() *InsecureVerifier { return &InsecureVerifier{now: time.Now} }

func (v *InsecureVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid token format")
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, err
	}
	var claims claimsToken
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, err
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, errors.New("token has no subject")
	}
	if exp, ok := claims["exp"].(float64); ok && time.Unix(int64(exp), 0).Before(v.now()) {
		return nil, errors.New("token expired")
	}
	return claims, nil
}
