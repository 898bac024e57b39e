package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/crmgate/pkg/rbac"
)

const (
	testIssuer   = "https://id.example.com"
	testClientID = "crm-web"
)

func newTestOIDC(t *testing.T) (*OIDCAuthenticator, func(claims map[string]any) string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testClientID})

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	sign := func(claims map[string]any) string {
		base := map[string]any{
			"iss": testIssuer,
			"aud": testClientID,
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		for k, v := range claims {
			base[k] = v
		}
		payload, err := json.Marshal(base)
		require.NoError(t, err)
		jws, err := signer.Sign(payload)
		require.NoError(t, err)
		raw, err := jws.CompactSerialize()
		require.NoError(t, err)
		return raw
	}

	return NewOIDCAuthenticator(verifier), sign
}

func TestOIDCAuthenticator(t *testing.T) {
	a, sign := newTestOIDC(t)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		p, err := a.Authenticate(ctx, sign(map[string]any{
			"sub":       "user-7",
			"tenant_id": "tenant-3",
			"crm_role":  "sales_rep",
		}))
		require.NoError(t, err)
		assert.Equal(t, "user-7", p.UserID())
		assert.Equal(t, "tenant-3", p.TenantID())
		assert.Equal(t, rbac.RoleSalesRep, p.Role())
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := a.Authenticate(ctx, sign(map[string]any{
			"sub":       "user-7",
			"tenant_id": "tenant-3",
			"crm_role":  "owner",
		}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing tenant", func(t *testing.T) {
		_, err := a.Authenticate(ctx, sign(map[string]any{
			"sub":      "user-7",
			"crm_role": "viewer",
		}))
		assert.ErrorIs(t, err, ErrIncompleteSubject)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := a.Authenticate(ctx, sign(map[string]any{
			"sub":       "user-7",
			"tenant_id": "tenant-3",
			"crm_role":  "viewer",
			"exp":       time.Now().Add(-time.Hour).Unix(),
		}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := a.Authenticate(ctx, sign(map[string]any{
			"sub":       "user-7",
			"tenant_id": "tenant-3",
			"crm_role":  "viewer",
			"aud":       "someone-else",
		}))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("session tokens are declined", func(t *testing.T) {
		_, err := a.Authenticate(ctx, "crm_abc")
		assert.ErrorIs(t, err, ErrUnsupportedToken)
	})
}
