package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature = errors.New("invalid webhook signature")
	ErrBadTimestamp = errors.New("invalid or expired webhook timestamp")
)

// VerifySignature authenticates a webhook delivery. The provider signs
// HMAC-SHA256 over "<t>.<raw body>" with the shared secret and sends the
// header "t=<unix>,v1=<hex>[,v1=<hex>...]". Verification runs over the
// exact raw bytes; the body must never be re-serialized first.
//
// The timestamp must fall within the replay window around now. Multiple
// v1 entries are accepted (secret rotation): any one matching passes.
func VerifySignature(secret string, header string, body []byte, now time.Time, window time.Duration) error {
	// An empty secret would validate any delivery signed with HMAC("", ...).
	if secret == "" {
		return ErrBadSignature
	}

	tsPart, sigs := parseSignatureHeader(header)
	if tsPart == "" || len(sigs) == 0 {
		return ErrBadSignature
	}

	tsInt, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	ts := time.Unix(tsInt, 0).UTC()

	nowUTC := now.UTC()
	if ts.Before(nowUTC.Add(-window)) || ts.After(nowUTC.Add(window)) {
		return ErrBadTimestamp
	}

	expected := computeSignature(secret, tsPart, body)
	for _, sig := range sigs {
		provided, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(provided, expected) {
			return nil
		}
	}
	return ErrBadSignature
}

// SignHeader builds a valid signature header for the given body.
// Used by tests and the local delivery tool.
func SignHeader(secret string, ts time.Time, body []byte) string {
	tsPart := strconv.FormatInt(ts.Unix(), 10)
	sig := hex.EncodeToString(computeSignature(secret, tsPart, body))
	return "t=" + tsPart + ",v1=" + sig
}

func computeSignature(secret string, tsPart string, body []byte) []byte {
	msg := make([]byte, 0, len(tsPart)+1+len(body))
	msg = append(msg, tsPart...)
	msg = append(msg, '.')
	msg = append(msg, body...)

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(msg)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (ts string, sigs []string) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sigs = append(sigs, value)
		}
	}
	return ts, sigs
}
