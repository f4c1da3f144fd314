package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature rejects the payload outright; nothing is
// processed and the attempt is logged as a security event by the
// caller.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign computes the signature the provider attaches to a payload:
// hex(HMAC-SHA256(secret, "<unix>.<body>")). Exposed for tests and
// local tooling.
func Sign(secret string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader renders the header value for a signed payload.
func SignatureHeader(secret string, ts time.Time, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), Sign(secret, ts, body))
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header against the raw
// body. The timestamp must fall within the tolerance window to bound
// replay of captured payloads. Comparison is constant time.
func VerifySignature(secret, header string, body []byte, now time.Time, tolerance time.Duration) error {
	if header == "" {
		return ErrInvalidSignature
	}

	var ts int64
	var signature string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = parsed
		case "v1":
			signature = value
		}
	}
	if ts == 0 || signature == "" {
		return ErrInvalidSignature
	}

	sent := time.Unix(ts, 0)
	age := now.Sub(sent)
	if age < -tolerance || age > tolerance {
		return ErrInvalidSignature
	}

	expected := Sign(secret, sent, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
