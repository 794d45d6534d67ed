package mandate

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

var ErrNoSigningKey = errors.New("no signing key configured")

const algorithm = "ES256"

// Signer produces detached JWS authorizations over a canonical
// representation of a pending transaction, and verifies them against
// the current session state.
type Signer struct {
	key   *ecdsa.PrivateKey
	keyID string
}

func NewSigner(key *ecdsa.PrivateKey, keyID string) *Signer {
	return &Signer{key: key, keyID: keyID}
}

// canonicalPayload fixes the field set and order of the signed
// transaction. Fields are declared in sorted-key order so the JSON
// encoding is byte-for-byte deterministic.
type canonicalPayload struct {
	CheckoutID    string `json:"checkout_id"`
	Currency      string `json:"currency"`
	GrandTotal    int64  `json:"grand_total"`
	LineItemsHash string `json:"line_items_hash"`
	SignedAt      int64  `json:"signed_at"`
}

type canonicalLineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func canonicalize(s *domain.CheckoutSession, signedAt time.Time) ([]byte, error) {
	items := make([]canonicalLineItem, 0, len(s.LineItems))
	for _, li := range s.LineItems {
		items = append(items, canonicalLineItem{
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
		})
	}
	itemBytes, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal line items: %w", err)
	}
	itemsHash := sha256.Sum256(itemBytes)

	return json.Marshal(canonicalPayload{
		CheckoutID:    s.ID,
		Currency:      s.Currency,
		GrandTotal:    s.Totals.GrandTotal,
		LineItemsHash: hex.EncodeToString(itemsHash[:]),
		SignedAt:      signedAt.Unix(),
	})
}

func (sg *Signer) header() ([]byte, error) {
	return json.Marshal(struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}{Alg: algorithm, Kid: sg.keyID})
}

// Sign builds the canonical digest for the session and signs it.
func (sg *Signer) Sign(s *domain.CheckoutSession) (*domain.Mandate, error) {
	if sg == nil || sg.key == nil {
		return nil, ErrNoSigningKey
	}

	signedAt := time.Now().UTC().Truncate(time.Second)
	payload, err := canonicalize(s, signedAt)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)

	header, err := sg.header()
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}

	encHeader := base64.RawURLEncoding.EncodeToString(header)
	encPayload := base64.RawURLEncoding.EncodeToString(payload)
	signingInput := encHeader + "." + encPayload

	sig, err := jwt.SigningMethodES256.Sign(signingInput, sg.key)
	if err != nil {
		return nil, fmt.Errorf("sign mandate: %w", err)
	}
	encSig := base64.RawURLEncoding.EncodeToString(sig)

	return &domain.Mandate{
		Digest:        hex.EncodeToString(digest[:]),
		Authorization: encHeader + ".." + encSig,
		Signature:     encSig,
		KeyID:         sg.keyID,
		Algorithm:     algorithm,
		SignedAt:      signedAt,
	}, nil
}

// Verify recomputes the digest from the current session state and
// checks both the digest and the signature. Any mismatch or decode
// failure returns false; verification never panics past the caller.
func (sg *Signer) Verify(m *domain.Mandate, s *domain.CheckoutSession) bool {
	if sg == nil || sg.key == nil || m == nil || s == nil {
		return false
	}
	if m.Algorithm != algorithm || m.KeyID != sg.keyID {
		return false
	}

	payload, err := canonicalize(s, m.SignedAt)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(payload)
	if hex.EncodeToString(digest[:]) != m.Digest {
		return false
	}

	header, err := sg.header()
	if err != nil {
		return false
	}
	encHeader := base64.RawURLEncoding.EncodeToString(header)
	encPayload := base64.RawURLEncoding.EncodeToString(payload)
	signingInput := encHeader + "." + encPayload

	sig, err := base64.RawURLEncoding.DecodeString(m.Signature)
	if err != nil {
		return false
	}

	return jwt.SigningMethodES256.Verify(signingInput, sig, &sg.key.PublicKey) == nil
}

// GenerateKey creates an ephemeral P-256 key for development setups
// where no key material is supplied.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// LoadPrivateKeyPEM reads an EC private key in SEC1 or PKCS#8 PEM form.
func LoadPrivateKeyPEM(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block in key file")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("key is not an EC private key")
	}
	return key, nil
}
