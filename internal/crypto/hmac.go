package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the API credentials obtained from the CLOB's derive-api-key
// endpoint and signs authenticated (L2) requests with them.
type HMACAuth struct {
	APIKey     string
	Secret     string // base64-encoded HMAC key, as issued by the CLOB
	Passphrase string
}

// Headers returns the HTTP headers for an authenticated CLOB request,
// stamped with the current time.
func (h *HMACAuth) Headers(address, method, path, body string) map[string]string {
	return h.HeadersAt(address, method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but signs with the given Unix timestamp. The
// signature is HMAC-SHA256(secret, timestamp+method+path+body), URL-safe
// base64 encoded.
//
// Returned header keys:
//   - POLY_ADDRESS
//   - POLY_API_KEY
//   - POLY_TIMESTAMP
//   - POLY_PASSPHRASE
//   - POLY_SIGNATURE
func (h *HMACAuth) HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	message := ts + method + path + body
	sig := hmacSHA256URLBase64(h.secretBytes(), message)

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.APIKey,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  sig,
	}
}

// secretBytes decodes the base64 secret. Secrets are normally issued with the
// standard alphabet, but some are URL-safe; if neither decodes the raw bytes
// are used so the caller gets an obviously-wrong signature rather than a panic.
func (h *HMACAuth) secretBytes() []byte {
	if b, err := base64.StdEncoding.DecodeString(h.Secret); err == nil {
		return b
	}
	if b, err := base64.URLEncoding.DecodeString(h.Secret); err == nil {
		return b
	}
	return []byte(h.Secret)
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.APIKey), redact(h.Secret))
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// hmacSHA256URLBase64 computes HMAC-SHA256 of message using key and returns
// the digest URL-safe base64 encoded, the form the CLOB verifies against.
func hmacSHA256URLBase64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
