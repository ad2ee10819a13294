package webhook

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// SNS message types.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

var snsHostPattern = regexp.MustCompile(`^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`)

// Message is the SNS HTTP(S) delivery envelope.
type Message struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	Token            string `json:"Token,omitempty"`
	TopicARN         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
}

// KnownType reports whether the envelope type is one SNS documents.
func (m Message) KnownType() bool {
	switch m.Type {
	case TypeNotification, TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		return true
	default:
		return false
	}
}

// StringToSign builds the canonical string SNS signs for this message type.
func (m Message) StringToSign() string {
	type field struct{ key, value string }
	var fields []field
	switch m.Type {
	case TypeNotification:
		fields = []field{{"Message", m.Message}, {"MessageId", m.MessageID}}
		if m.Subject != "" {
			fields = append(fields, field{"Subject", m.Subject})
		}
		fields = append(fields, field{"Timestamp", m.Timestamp}, field{"TopicArn", m.TopicARN}, field{"Type", m.Type})
	default:
		fields = []field{
			{"Message", m.Message},
			{"MessageId", m.MessageID},
			{"SubscribeURL", m.SubscribeURL},
			{"Timestamp", m.Timestamp},
			{"Token", m.Token},
			{"TopicArn", m.TopicARN},
			{"Type", m.Type},
		}
	}
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.key)
		b.WriteByte('\n')
		b.WriteString(f.value)
		b.WriteByte('\n')
	}
	return b.String()
}

// ValidateSNSURL accepts only https URLs served by an SNS regional endpoint.
func ValidateSNSURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "https" {
		return nil, fmt.Errorf("url %q is not https", raw)
	}
	if !snsHostPattern.MatchString(strings.ToLower(parsed.Hostname())) {
		return nil, fmt.Errorf("url host %q is not an SNS endpoint", parsed.Hostname())
	}
	return parsed, nil
}

// CertFetcher retrieves a PEM-encoded signing certificate.
type CertFetcher interface {
	Fetch(ctx context.Context, certURL string) ([]byte, error)
}

// HTTPCertFetcher downloads certificates over HTTPS.
type HTTPCertFetcher struct {
	Client *http.Client
}

const maxCertBytes = 64 << 10

func (f HTTPCertFetcher) Fetch(ctx context.Context, certURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build cert request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing cert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signing cert: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCertBytes))
}

// Verifier checks SNS message signatures, caching certificates by URL.
type Verifier struct {
	fetcher CertFetcher

	mu    sync.Mutex
	certs map[string]*rsa.PublicKey
}

// NewVerifier returns a verifier; a nil fetcher uses HTTPCertFetcher.
func NewVerifier(fetcher CertFetcher) *Verifier {
	if fetcher == nil {
		fetcher = HTTPCertFetcher{}
	}
	return &Verifier{fetcher: fetcher, certs: make(map[string]*rsa.PublicKey)}
}

var errUnsupportedSignature = errors.New("unsupported signature version")

// Verify authenticates msg.
func (v *Verifier) Verify(ctx context.Context, msg Message) error {
	var (
		hash   crypto.Hash
		digest []byte
	)
	payload := []byte(msg.StringToSign())
	switch msg.SignatureVersion {
	case "1":
		sum := sha1.Sum(payload)
		hash, digest = crypto.SHA1, sum[:]
	case "2":
		sum := sha256.Sum256(payload)
		hash, digest = crypto.SHA256, sum[:]
	default:
		return fmt.Errorf("%w %q", errUnsupportedSignature, msg.SignatureVersion)
	}

	signature, err := base64.StdEncoding.DecodeString(msg.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	key, err := v.publicKey(ctx, msg.SigningCertURL)
	if err != nil {
		return err
	}
	if err := rsa.VerifyPKCS1v15(key, hash, digest, signature); err != nil {
		return fmt.Errorf("signature mismatch: %w", err)
	}
	return nil
}

func (v *Verifier) publicKey(ctx context.Context, certURL string) (*rsa.PublicKey, error) {
	if _, err := ValidateSNSURL(certURL); err != nil {
		return nil, fmt.Errorf("signing cert: %w", err)
	}
	if !strings.HasSuffix(strings.ToLower(certURL), ".pem") {
		return nil, fmt.Errorf("signing cert %q is not a .pem", certURL)
	}

	v.mu.Lock()
	key, ok := v.certs[certURL]
	v.mu.Unlock()
	if ok {
		return key, nil
	}

	raw, err := v.fetcher.Fetch(ctx, certURL)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("signing cert is not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing cert: %w", err)
	}
	key, ok = cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("signing cert does not carry an RSA key")
	}

	v.mu.Lock()
	v.certs[certURL] = key
	v.mu.Unlock()
	return key, nil
}
