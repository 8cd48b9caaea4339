package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RSAAuth signs Kalshi trade API requests with the RSA key issued alongside
// an API key ID. Kalshi verifies an RSA-PSS signature over
// timestamp+method+path, where path includes the /trade-api/v2 prefix.
type RSAAuth struct {
	KeyID string
	key   *rsa.PrivateKey
}

// NewRSAAuth parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8) and
// pairs it with the API key ID it was issued for.
func NewRSAAuth(keyID string, privateKeyPEM []byte) (*RSAAuth, error) {
	if keyID == "" {
		return nil, errors.New("crypto: kalshi API key ID must not be empty")
	}

	key, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	return &RSAAuth{KeyID: keyID, key: key}, nil
}

// Headers returns the HTTP headers for a signed Kalshi request, stamped with
// the current time.
func (r *RSAAuth) Headers(method, path string) (map[string]string, error) {
	return r.HeadersAt(method, path, time.Now().UnixMilli())
}

// HeadersAt is like Headers but signs with the given millisecond timestamp.
// The signature is RSA-PSS (SHA-256, max salt) over timestamp+method+path,
// standard base64 encoded.
//
// Returned header keys:
//   - KALSHI-ACCESS-KEY
//   - KALSHI-ACCESS-TIMESTAMP
//   - KALSHI-ACCESS-SIGNATURE
func (r *RSAAuth) HeadersAt(method, path string, unixMS int64) (map[string]string, error) {
	ts := strconv.FormatInt(unixMS, 10)

	message := ts + strings.ToUpper(method) + path
	digest := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, r.key, stdcrypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       stdcrypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: kalshi request signing: %w", err)
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       r.KeyID,
		"KALSHI-ACCESS-TIMESTAMP": ts,
		"KALSHI-ACCESS-SIGNATURE": base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// String returns a redacted representation suitable for logging.
func (r *RSAAuth) String() string {
	return fmt.Sprintf("RSAAuth{keyID=%s}", redact(r.KeyID))
}

// parseRSAPrivateKey decodes a PEM block and tries PKCS#8 first, then PKCS#1.
// Kalshi's console exports PKCS#8; older exports were PKCS#1.
func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("crypto: no PEM block found in kalshi private key")
	}

	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("crypto: kalshi private key is %T, want RSA", parsed)
		}
		return key, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing kalshi private key: %w", err)
	}
	return key, nil
}
