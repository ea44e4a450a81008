package sui

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

const (
	SecretKeyPrefix = "suiprivkey"

	SignatureSchemeEd25519 byte = 0x00

	SecretKeySize = ed25519.SeedSize
)

// Intent prefix for transaction data: scope, version, app id.
var transactionIntent = []byte{0, 0, 0}

type KeyFormat string

const (
	KeyFormatBech32 KeyFormat = "bech32"
	KeyFormatHex    KeyFormat = "hex"
)

type KeyFormatError struct {
	Format KeyFormat
	Reason string
}

func (e *KeyFormatError) Error() string {
	return fmt.Sprintf("invalid %s secret key: %s", e.Format, e.Reason)
}

// Keypair is an ed25519 signing key. Its String form never includes secret
// material.
type Keypair struct {
	priv ed25519.PrivateKey
}

func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SecretKeySize {
		return nil, fmt.Errorf("sui: secret key must be %d bytes, got %d", SecretKeySize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func GenerateKeypair() (*Keypair, error) {
	seed := make([]byte, SecretKeySize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("sui: generate key: %w", err)
	}
	return NewKeypairFromSeed(seed)
}

// ParseSecretKey accepts either a suiprivkey1… Bech32 string or a hex
// encoded 32-byte secret (with or without 0x).
func ParseSecretKey(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), SecretKeyPrefix+"1") {
		return parseBech32SecretKey(s)
	}
	return parseHexSecretKey(s)
}

func parseBech32SecretKey(s string) (*Keypair, error) {
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, &KeyFormatError{Format: KeyFormatBech32, Reason: err.Error()}
	}
	if hrp != SecretKeyPrefix {
		return nil, &KeyFormatError{Format: KeyFormatBech32, Reason: fmt.Sprintf("unexpected prefix %q", hrp)}
	}

	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, &KeyFormatError{Format: KeyFormatBech32, Reason: err.Error()}
	}
	if len(raw) != SecretKeySize+1 {
		return nil, &KeyFormatError{Format: KeyFormatBech32, Reason: fmt.Sprintf("payload is %d bytes", len(raw))}
	}
	if raw[0] != SignatureSchemeEd25519 {
		return nil, &KeyFormatError{Format: KeyFormatBech32, Reason: fmt.Sprintf("unsupported signature scheme 0x%02x", raw[0])}
	}

	return NewKeypairFromSeed(raw[1:])
}

func parseHexSecretKey(s string) (*Keypair, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, &KeyFormatError{Format: KeyFormatHex, Reason: "empty key"}
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, &KeyFormatError{Format: KeyFormatHex, Reason: "not valid hex"}
	}
	if len(raw) != SecretKeySize {
		return nil, &KeyFormatError{Format: KeyFormatHex, Reason: fmt.Sprintf("expected %d bytes, got %d", SecretKeySize, len(raw))}
	}

	return NewKeypairFromSeed(raw)
}

func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

func (k *Keypair) Address() string {
	return AddressFromPublicKey(k.PublicKey())
}

// AddressFromPublicKey is the blake2b-256 hash of the scheme flag followed by
// the public key.
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, 1+ed25519.PublicKeySize)
	buf = append(buf, SignatureSchemeEd25519)
	buf = append(buf, pub...)

	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}

func transactionDigest(tx []byte) [32]byte {
	msg := make([]byte, 0, len(transactionIntent)+len(tx))
	msg = append(msg, transactionIntent...)
	msg = append(msg, tx...)
	return blake2b.Sum256(msg)
}

// SignTransaction signs base64 transaction bytes and returns the serialized
// signature: flag || signature || public key, base64 encoded.
func (k *Keypair) SignTransaction(txBytes string) (string, error) {
	tx, err := base64.StdEncoding.DecodeString(txBytes)
	if err != nil {
		return "", fmt.Errorf("sui: decode transaction bytes: %w", err)
	}

	digest := transactionDigest(tx)
	sig := ed25519.Sign(k.priv, digest[:])

	out := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	out = append(out, SignatureSchemeEd25519)
	out = append(out, sig...)
	out = append(out, k.PublicKey()...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// VerifySignature checks a serialized signature over base64 transaction bytes
// and returns the address of the signer.
func VerifySignature(txBytes, signature string) (string, error) {
	tx, err := base64.StdEncoding.DecodeString(txBytes)
	if err != nil {
		return "", fmt.Errorf("sui: decode transaction bytes: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("sui: decode signature: %w", err)
	}
	if len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize {
		return "", fmt.Errorf("sui: signature is %d bytes", len(raw))
	}
	if raw[0] != SignatureSchemeEd25519 {
		return "", fmt.Errorf("sui: unsupported signature scheme 0x%02x", raw[0])
	}

	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])
	digest := transactionDigest(tx)
	if !ed25519.Verify(pub, digest[:], sig) {
		return "", fmt.Errorf("sui: signature does not verify")
	}
	return AddressFromPublicKey(pub), nil
}

// EncodeSecretKey renders the key in the suiprivkey Bech32 format.
func (k *Keypair) EncodeSecretKey() (string, error) {
	raw := make([]byte, 0, SecretKeySize+1)
	raw = append(raw, SignatureSchemeEd25519)
	raw = append(raw, k.priv.Seed()...)

	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("sui: encode secret key: %w", err)
	}
	return bech32.Encode(SecretKeyPrefix, data)
}

func (k *Keypair) String() string {
	return fmt.Sprintf("Keypair(%s)", k.Address())
}
