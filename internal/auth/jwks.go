package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"net/http"

	"github.com/redmonkez12/auth-service/internal/httputil"
	"github.com/redmonkez12/auth-service/internal/logging"
)

// jwk is an RFC 7517 representation of the RSA public verification key.
type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSHandler serves the access-token public key at /.well-known/jwks.json
// so any verifier can validate sessions without ever holding the private key.
func JWKSHandler(tokens *TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pub, err := tokens.PublicKey()
		if err != nil {
			logging.GetLoggerFromContext(r.Context()).Error("failed to load public key for JWKS", "error", err.Error())
			httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
			return
		}

		n := pub.N.Bytes()
		e := big.NewInt(int64(pub.E)).Bytes()

		// The kid only needs to be stable for this key; a digest of the
		// modulus does the job without extra configuration.
		digest := sha256.Sum256(n)
		kid := base64.RawURLEncoding.EncodeToString(digest[:8])

		httputil.RespondJSON(w, jwks{
			Keys: []jwk{{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: kid,
				N:   base64.RawURLEncoding.EncodeToString(n),
				E:   base64.RawURLEncoding.EncodeToString(e),
			}},
		}, http.StatusOK)
	}
}
