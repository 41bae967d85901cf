package settings

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
)

type credentialClaims struct {
	Token   string `json:"tok"`
	Version string `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

func seal(secret []byte, token string, version string) (string, error) {
	sealed := jwt.NewWithClaims(jwt.SigningMethodHS512, credentialClaims{
		Token:   token,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
	})
	return sealed.SignedString(secret)
}

func unseal(secret []byte, sealed string) (credentialClaims, error) {
	token, err := jwt.ParseWithClaims(sealed, &credentialClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return credentialClaims{}, err
	} else if claims, ok := token.Claims.(*credentialClaims); ok {
		return *claims, nil
	} else {
		return credentialClaims{}, errors.New("invalid credential")
	}
}

// Fingerprint identifies a token in logs without revealing it.
func Fingerprint(token string) string {
	if token == "" {
		return "none"
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
