// Package keystore manages the long-lived P-256 key pair used for request
// signing and device identity.
package keystore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"time"
)

const (
	pemTypePrivate = "PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"

	// Uncompressed NIST P-256 point: 0x04 prefix + 32-byte X + 32-byte Y.
	uncompressedPointLen = 65
)

// KeyPair holds a P-256 key pair in both parsed and PEM form. The PEM form is
// what gets persisted (PKCS#8 private key, SubjectPublicKeyInfo public key).
type KeyPair struct {
	PrivateKeyPEM string `json:"privateKeyPem"`
	PublicKeyPEM  string `json:"publicKeyPem"`

	private *ecdsa.PrivateKey
}

// Envelope is a signed request payload. The signature covers the JSON
// serialization of {timestamp, data}.
type Envelope struct {
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
	Signature string `json:"signature"`
}

// KeyStore generates, persists, and loads the key pair.
type KeyStore struct {
	storage Storage
}

// New creates a key store backed by storage.
func New(storage Storage) *KeyStore {
	return &KeyStore{storage: storage}
}

// Generate creates a fresh P-256 key pair. The pair is not persisted; call
// Save for that.
func Generate() (*KeyPair, error) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	return &KeyPair{
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: privDER})),
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: pubDER})),
		private:       private,
	}, nil
}

// Exists reports whether a key pair is stored.
func (s *KeyStore) Exists() bool {
	return s.storage.Exists()
}

// Save persists the key pair.
func (s *KeyStore) Save(pair *KeyPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to serialize key pair: %w", err)
	}
	return s.storage.Write(data)
}

// Load reads the stored key pair. The second return value is false when no
// key pair is stored.
func (s *KeyStore) Load() (*KeyPair, bool, error) {
	data, ok, err := s.storage.Read()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var pair KeyPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, false, fmt.Errorf("key store is corrupt: %w", err)
	}
	if err := pair.parse(); err != nil {
		return nil, false, err
	}
	return &pair, true, nil
}

// Ensure returns the stored key pair, generating and persisting one on first
// use.
func (s *KeyStore) Ensure() (*KeyPair, error) {
	pair, ok, err := s.Load()
	if err != nil {
		return nil, err
	}
	if ok {
		return pair, nil
	}

	pair, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := s.Save(pair); err != nil {
		return nil, err
	}
	return pair, nil
}

// Delete removes the stored key pair. This is an explicit user action; the
// pair is never rotated automatically.
func (s *KeyStore) Delete() error {
	return s.storage.Remove()
}

// parse recovers the ecdsa private key from the PEM form.
func (p *KeyPair) parse() error {
	block, _ := pem.Decode([]byte(p.PrivateKeyPEM))
	if block == nil || block.Type != pemTypePrivate {
		return fmt.Errorf("key store is corrupt: invalid private key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("key store is corrupt: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return fmt.Errorf("key store is corrupt: not an EC private key")
	}
	p.private = ecKey
	return nil
}

// Sign signs message with ECDSA-SHA-512 and returns the ASN.1 DER signature
// base64-encoded.
func (p *KeyPair) Sign(message []byte) (string, error) {
	if p.private == nil {
		if err := p.parse(); err != nil {
			return "", err
		}
	}
	digest := sha512.Sum512(message)
	sig, err := ecdsa.SignASN1(rand.Reader, p.private, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature produced by Sign. Used by tests and
// diagnostics only; the broker does the real verification.
func (p *KeyPair) Verify(message []byte, signature string) bool {
	if p.private == nil {
		if err := p.parse(); err != nil {
			return false
		}
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := sha512.Sum512(message)
	return ecdsa.VerifyASN1(&p.private.PublicKey, digest[:], sig)
}

// SignedEnvelope builds {timestamp, data, signature} where the signed bytes
// are the JSON serialization of {timestamp, data}. The timestamp is ISO-8601
// in UTC.
func (p *KeyPair) SignedEnvelope(data any, now time.Time) (*Envelope, error) {
	timestamp := now.UTC().Format(time.RFC3339)

	payload, err := json.Marshal(struct {
		Timestamp string `json:"timestamp"`
		Data      any    `json:"data"`
	}{timestamp, data})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize envelope payload: %w", err)
	}

	signature, err := p.Sign(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Timestamp: timestamp,
		Data:      data,
		Signature: signature,
	}, nil
}

// PublicKeyBase64 returns the raw uncompressed EC point (65 bytes, 0x04
// prefixed) base64-encoded. The point is the tail of the DER SPKI encoding.
func (p *KeyPair) PublicKeyBase64() (string, error) {
	block, _ := pem.Decode([]byte(p.PublicKeyPEM))
	if block == nil || block.Type != pemTypePublic {
		return "", fmt.Errorf("invalid public key PEM")
	}
	if len(block.Bytes) < uncompressedPointLen {
		return "", fmt.Errorf("public key encoding too short: %d bytes", len(block.Bytes))
	}
	point := block.Bytes[len(block.Bytes)-uncompressedPointLen:]
	if point[0] != 0x04 {
		return "", fmt.Errorf("public key point is not uncompressed")
	}
	return base64.StdEncoding.EncodeToString(point), nil
}
