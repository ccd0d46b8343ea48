// Package transport implements the asymmetric cipher used to protect
// password plaintext between client and server.
//
// A fixed RSA key pair is loaded once and cached for the process
// lifetime; there is no rotation path. The cipher protects short secrets
// in transit only — it is not a data-at-rest scheme.
package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
)

var (
	// ErrCrypto is the failure class for every decode or decrypt problem.
	// Callers map it to a generic "credential unreadable" message; cipher
	// internals never reach a client.
	ErrCrypto = errors.New("transport cipher failure")
)

// Cipher decrypts RSA-encrypted, base64-encoded secrets with a fixed key
// pair. Construct it once at startup with NewCipher or NewCipherFromFiles
// and pass it down; the zero value is not usable.
type Cipher struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey

	pemOnce   sync.Once
	publicPEM string
}

// NewCipher builds a Cipher from PEM-encoded key material. The private
// key must be PKCS#8 ("PRIVATE KEY"), the public key PKIX ("PUBLIC KEY").
func NewCipher(privatePEM, publicPEM []byte) (*Cipher, error) {
	private, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	public, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}

	return &Cipher{private: private, public: public}, nil
}

// NewCipherFromFiles reads the key pair from PEM files on disk.
func NewCipherFromFiles(privatePath, publicPath string) (*Cipher, error) {
	privatePEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewCipher(privatePEM, publicPEM)
}

// PublicKeyPEM returns the public key in PEM form for clients to encrypt
// against. The encoding is computed once and cached; safe for concurrent
// callers.
func (c *Cipher) PublicKeyPEM() string {
	c.pemOnce.Do(func() {
		der, err := x509.MarshalPKIXPublicKey(c.public)
		if err != nil {
			return
		}
		c.publicPEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: der,
		}))
	})
	return c.publicPEM
}

// Decrypt base64-decodes ciphertext and decrypts it with the private key.
// Every failure mode (bad base64, wrong key, corrupted padding) comes
// back wrapped in ErrCrypto.
func (c *Cipher) Decrypt(ciphertextBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", ErrCrypto, err)
	}

	plain, err := rsa.DecryptPKCS1v15(rand.Reader, c.private, raw)
	if err != nil {
		return "", fmt.Errorf("%w: decrypt: %v", ErrCrypto, err)
	}

	return string(plain), nil
}

// Encrypt is the client-side counterpart of Decrypt, kept here for tests
// and tooling. Plaintext must fit the RSA block capacity (keysize/8 - 11
// bytes for PKCS#1 v1.5).
func (c *Cipher) Encrypt(plain string) (string, error) {
	raw, err := rsa.EncryptPKCS1v15(rand.Reader, c.public, []byte(plain))
	if err != nil {
		return "", fmt.Errorf("%w: encrypt: %v", ErrCrypto, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid private key PEM")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func parsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
