package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const defaultKeyBits = 2048

// GenerateKeyPair creates a fresh RSA key pair and returns both halves
// PEM-encoded (PKCS#8 private, PKIX public). bits <= 0 selects 2048.
func GenerateKeyPair(bits int) (privatePEM, publicPEM []byte, err error) {
	if bits <= 0 {
		bits = defaultKeyBits
	}
	if bits < 2048 {
		return nil, nil, fmt.Errorf("key size %d too small, need >= 2048", bits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}

	privateDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	return privatePEM, publicPEM, nil
}

// WriteKeyPair generates a key pair and writes it to the given paths.
// The private key file is created with 0600 permissions.
func WriteKeyPair(privatePath, publicPath string, bits int) error {
	privatePEM, publicPEM, err := GenerateKeyPair(bits)
	if err != nil {
		return err
	}

	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}
