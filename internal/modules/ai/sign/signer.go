// Package sign computes the HMAC-SHA256 canonical request signature used by the
// visual media API.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	Algorithm   = "HMAC-SHA256"
	ContentType = "application/json"
	timeFormat  = "20060102T150405Z"
	dateFormat  = "20060102"
	terminator  = "request"
)

var ErrInvalidCredential = errors.New("sign: invalid credential")

type Credential struct {
	AccessKey string
	SecretKey string
	Region    string
	Service   string
}

func (c Credential) Verify() error {
	var missing []string
	if c.AccessKey == "" {
		missing = append(missing, "access key")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret key")
	}
	if c.Region == "" {
		missing = append(missing, "region")
	}
	if c.Service == "" {
		missing = append(missing, "service")
	}
	if len(missing) != 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidCredential, strings.Join(missing, ", "))
	}
	return nil
}

type Signer struct {
	credential Credential
	now        func() time.Time
}

func NewSigner(credential Credential) *Signer {
	return &Signer{credential: credential, now: time.Now}
}

// WithClock replaces the signing clock.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign returns the headers to attach to the request. body may be nil.
func (s *Signer) Sign(method, rawURL string, body []byte) (map[string]string, error) {
	if err := s.credential.Verify(); err != nil {
		return nil, err
	}
	if method == "" {
		return nil, fmt.Errorf("sign: method is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("sign: parse url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("sign: url %q has no host", rawURL)
	}

	t := s.now().UTC()
	xDate := t.Format(timeFormat)
	shortDate := t.Format(dateFormat)
	payloadHash := hashHex(body)

	headers := map[string]string{
		"content-type":     ContentType,
		"host":             u.Host,
		"x-content-sha256": payloadHash,
		"x-date":           xDate,
	}
	signedHeaders := make([]string, 0, len(headers))
	for k := range headers {
		signedHeaders = append(signedHeaders, k)
	}
	sort.Strings(signedHeaders)

	var canonicalHeaders strings.Builder
	for _, k := range signedHeaders {
		canonicalHeaders.WriteString(k)
		canonicalHeaders.WriteString(":")
		canonicalHeaders.WriteString(strings.TrimSpace(headers[k]))
		canonicalHeaders.WriteString("\n")
	}
	signedHeaderList := strings.Join(signedHeaders, ";")

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	canonicalRequest := strings.Join([]string{
		strings.ToUpper(method),
		path,
		canonicalQuery(u.Query()),
		canonicalHeaders.String(),
		signedHeaderList,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{shortDate, s.credential.Region, s.credential.Service, terminator}, "/")
	stringToSign := strings.Join([]string{Algorithm, xDate, scope, hashHex([]byte(canonicalRequest))}, "\n")

	key := s.signingKey(shortDate)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	return map[string]string{
		"Content-Type":     ContentType,
		"Host":             u.Host,
		"X-Date":           xDate,
		"X-Content-Sha256": payloadHash,
		"Authorization": fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
			Algorithm, s.credential.AccessKey, scope, signedHeaderList, signature),
	}, nil
}

// signingKey derives date -> region -> service -> "request".
func (s *Signer) signingKey(shortDate string) []byte {
	kDate := hmacSHA256([]byte(s.credential.SecretKey), shortDate)
	kRegion := hmacSHA256(kDate, s.credential.Region)
	kService := hmacSHA256(kRegion, s.credential.Service)
	return hmacSHA256(kService, terminator)
}

func canonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, escape(k)+"="+escape(v))
		}
	}
	return strings.Join(parts, "&")
}

// escape encodes per RFC 3986: spaces become %20 and '~' stays literal.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func hmacSHA256(key []byte, content string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(content))
	return mac.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
