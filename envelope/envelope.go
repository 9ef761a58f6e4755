// Package envelope signs and verifies server-to-server calls between the
// service and relying parties with ECDSA P-256 over SHA-256.
//
// A request is signed over Date, the full request URL and the raw body. A
// response is signed over the application id, its own Date, the request URL
// and the raw response body. Signatures travel hex encoded as r||s.
package envelope

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"strings"
)

const (
	HeaderService   = "X-Service"
	HeaderSignature = "X-Signature"
	HeaderDate      = "Date"
)

const coordSize = 32

// RequestCanonical is the signed representation of a request.
func RequestCanonical(date, url string, body []byte) []byte {
	b := make([]byte, 0, len(date)+len(url)+len(body)+2)
	b = append(b, date...)
	b = append(b, '\n')
	b = append(b, url...)
	b = append(b, '\n')
	return append(b, body...)
}

// ResponseCanonical is the signed representation of a response.
func ResponseCanonical(appID, date, url string, body []byte) []byte {
	b := make([]byte, 0, len(appID)+len(date)+len(url)+len(body)+3)
	b = append(b, appID...)
	b = append(b, '\n')
	return append(b, RequestCanonical(date, url, body)...)
}

// RequestURL rebuilds the absolute URL the caller addressed.
func RequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0]))
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// GenerateKey creates a new P-256 keypair.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// Sign returns the hex signature of msg.
func Sign(key *ecdsa.PrivateKey, msg []byte) (string, error) {
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("envelope: sign: %w", err)
	}
	sig := make([]byte, 2*coordSize)
	r.FillBytes(sig[:coordSize])
	s.FillBytes(sig[coordSize:])
	return hex.EncodeToString(sig), nil
}

// Verify reports whether signature is a valid hex signature of msg under pub.
func Verify(pub *ecdsa.PublicKey, msg []byte, signature string) bool {
	if pub == nil {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != 2*coordSize {
		return false
	}
	r := new(big.Int).SetBytes(sig[:coordSize])
	s := new(big.Int).SetBytes(sig[coordSize:])
	digest := sha256.Sum256(msg)
	return ecdsa.Verify(pub, digest[:], r, s)
}

// EncodePrivateKey returns key as a PKCS#8 PEM block.
func EncodePrivateKey(key *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("envelope: marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// DecodePrivateKey parses a PKCS#8 or SEC 1 PEM encoded P-256 key.
func DecodePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("envelope: no PEM block in private key")
	}
	if block.Type == "EC PRIVATE KEY" {
		return x509.ParseECPrivateKey(block.Bytes)
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("envelope: parse private key: %w", err)
	}
	key, ok := k.(*ecdsa.PrivateKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("envelope: private key is not P-256 ECDSA")
	}
	return key, nil
}

// EncodePublicKey returns pub as a PKIX PEM block.
func EncodePublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("envelope: marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// DecodePublicKey parses a PKIX PEM encoded P-256 public key.
func DecodePublicKey(s string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("envelope: no PEM block in public key")
	}
	k, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("envelope: parse public key: %w", err)
	}
	pub, ok := k.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("envelope: public key is not P-256 ECDSA")
	}
	return pub, nil
}
