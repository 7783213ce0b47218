// Package wallet loads the controlling wallet's signing credential and
// derives the textual principal that sweeps settle into.
package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base32"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"os"
	"strings"
)

// CredentialError means the wallet PEM was absent or unusable. It is a
// pre-flight failure; nothing has moved when it is returned.
type CredentialError struct {
	Path string
	Err  error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("wallet credential %s: %v", e.Path, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

type Wallet struct {
	Principal string
	key       ed25519.PrivateKey
}

// Load reads an Ed25519 private key PEM and derives the wallet principal.
func Load(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CredentialError{Path: path, Err: err}
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &CredentialError{Path: path, Err: fmt.Errorf("no PEM block found")}
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &CredentialError{Path: path, Err: fmt.Errorf("parse private key: %w", err)}
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, &CredentialError{Path: path, Err: fmt.Errorf("unsupported key type %T", parsed)}
	}

	der, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, &CredentialError{Path: path, Err: fmt.Errorf("encode public key: %w", err)}
	}

	return &Wallet{Principal: principalFromDER(der), key: key}, nil
}

// principalFromDER derives the self-authenticating principal text:
// sha224 of the DER public key plus the 0x02 tag, prefixed with a CRC32
// checksum, base32-encoded and grouped in fives.
func principalFromDER(der []byte) string {
	digest := sha256.Sum224(der)
	raw := append(digest[:], 0x02)

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], crc32.ChecksumIEEE(raw))
	payload := append(buf[:], raw...)

	enc := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(payload))
	var groups []string
	for len(enc) > 5 {
		groups = append(groups, enc[:5])
		enc = enc[5:]
	}
	groups = append(groups, enc)
	return strings.Join(groups, "-")
}
