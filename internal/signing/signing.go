// Package signing signs firmware builds with ECDSA P-256 keys.
package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
)

// KeyPair holds the firmware signing keys
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
	KeyID      string
}

// FileSignature describes a signed firmware file
type FileSignature struct {
	Hash      string // hex sha256
	SizeBytes int64
	Signature string // base64 r||s
}

// GenerateKeyPair creates a new P-256 key pair
func GenerateKeyPair(keyID string) (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key pair: %w", err)
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		KeyID:      keyID,
	}, nil
}

// SaveKeyPair writes <keyID>.key (PKCS#8) and <keyID>.pub (PKIX) PEM files
func SaveKeyPair(keyPair *KeyPair, keyDir string) error {
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(keyPair.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	privatePath := filepath.Join(keyDir, keyPair.KeyID+".key")
	if err := writePEM(privatePath, "PRIVATE KEY", privateKeyBytes, 0600); err != nil {
		return err
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(keyPair.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicPath := filepath.Join(keyDir, keyPair.KeyID+".pub")
	return writePEM(publicPath, "PUBLIC KEY", publicKeyBytes, 0644)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// LoadKeyPair loads a key pair saved by SaveKeyPair
func LoadKeyPair(keyID, keyDir string) (*KeyPair, error) {
	privateKeyPEM, err := os.ReadFile(filepath.Join(keyDir, keyID+".key"))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	block, _ := pem.Decode(privateKeyPEM)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, errors.New("failed to decode private key PEM block")
	}

	privateKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	ecdsaKey, ok := privateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an ECDSA key")
	}

	return &KeyPair{
		PrivateKey: ecdsaKey,
		PublicKey:  &ecdsaKey.PublicKey,
		KeyID:      keyID,
	}, nil
}

// digestFile returns the sha256 digest and size of a file
func digestFile(path string) ([]byte, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open firmware file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to hash firmware file: %w", err)
	}
	return hash.Sum(nil), size, nil
}

// SignFile hashes and signs a firmware file
func SignFile(keyPair *KeyPair, path string) (*FileSignature, error) {
	digest, size, err := digestFile(path)
	if err != nil {
		return nil, err
	}

	r, s, err := ecdsa.Sign(rand.Reader, keyPair.PrivateKey, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign firmware digest: %w", err)
	}

	// fixed-width r||s
	signature := make([]byte, 64)
	r.FillBytes(signature[:32])
	s.FillBytes(signature[32:])

	return &FileSignature{
		Hash:      hex.EncodeToString(digest),
		SizeBytes: size,
		Signature: base64.StdEncoding.EncodeToString(signature),
	}, nil
}

// VerifyFile checks a signature produced by SignFile
func VerifyFile(publicKey *ecdsa.PublicKey, path, signature string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(raw) != 64 {
		return false, errors.New("invalid signature length")
	}

	digest, _, err := digestFile(path)
	if err != nil {
		return false, err
	}

	r := new(big.Int).SetBytes(raw[:32])
	s := new(big.Int).SetBytes(raw[32:])
	return ecdsa.Verify(publicKey, digest, r, s), nil
}
