package sui_test

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"coinflip-relay/internal/sui"
)

func testSeed() []byte {
	return bytes.Repeat([]byte{0x2a}, sui.SecretKeySize)
}

func TestParseSecretKeyFormatsAgree(t *testing.T) {
	kp, err := sui.NewKeypairFromSeed(testSeed())
	require.NoError(t, err)

	encoded, err := kp.EncodeSecretKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "suiprivkey1"))

	fromBech32, err := sui.ParseSecretKey(encoded)
	require.NoError(t, err)

	fromHex, err := sui.ParseSecretKey(hex.EncodeToString(testSeed()))
	require.NoError(t, err)

	fromPrefixedHex, err := sui.ParseSecretKey("0x" + hex.EncodeToString(testSeed()))
	require.NoError(t, err)

	assert.Equal(t, kp.Address(), fromBech32.Address())
	assert.Equal(t, kp.Address(), fromHex.Address())
	assert.Equal(t, kp.Address(), fromPrefixedHex.Address())
}

func TestParseSecretKeyRejectsMalformed(t *testing.T) {
	cases := map[string]sui.KeyFormat{
		"":                      sui.KeyFormatHex,
		"zz":                    sui.KeyFormatHex,
		"abcd":                  sui.KeyFormatHex,
		"suiprivkey1qqqqqqqqqq": sui.KeyFormatBech32,
	}

	for input, format := range cases {
		_, err := sui.ParseSecretKey(input)
		require.Error(t, err, "input %q", input)

		var kfe *sui.KeyFormatError
		require.ErrorAs(t, err, &kfe, "input %q", input)
		assert.Equal(t, format, kfe.Format, "input %q", input)
	}
}

func TestAddressDerivation(t *testing.T) {
	kp, err := sui.NewKeypairFromSeed(testSeed())
	require.NoError(t, err)

	pub := ed25519.NewKeyFromSeed(testSeed()).Public().(ed25519.PublicKey)
	sum := blake2b.Sum256(append([]byte{0x00}, pub...))

	assert.Equal(t, "0x"+hex.EncodeToString(sum[:]), kp.Address())
	assert.Len(t, kp.Address(), 66)
}

func TestSignTransaction(t *testing.T) {
	kp, err := sui.NewKeypairFromSeed(testSeed())
	require.NoError(t, err)

	tx := []byte("transaction-data")
	sig, err := kp.SignTransaction(base64.StdEncoding.EncodeToString(tx))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	require.Len(t, raw, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	assert.Equal(t, sui.SignatureSchemeEd25519, raw[0])
	assert.Equal(t, []byte(kp.PublicKey()), raw[1+ed25519.SignatureSize:])

	digest := blake2b.Sum256(append([]byte{0, 0, 0}, tx...))
	assert.True(t, ed25519.Verify(kp.PublicKey(), digest[:], raw[1:1+ed25519.SignatureSize]))

	_, err = kp.SignTransaction("%%%")
	assert.Error(t, err)
}

func TestKeypairStringHidesSecret(t *testing.T) {
	kp, err := sui.NewKeypairFromSeed(testSeed())
	require.NoError(t, err)

	s := kp.String()
	assert.Contains(t, s, kp.Address())
	assert.NotContains(t, s, hex.EncodeToString(testSeed()))
}

func TestVerifySignature(t *testing.T) {
	kp, err := sui.NewKeypairFromSeed(testSeed())
	require.NoError(t, err)

	tx := base64.StdEncoding.EncodeToString([]byte("transaction-data"))
	sig, err := kp.SignTransaction(tx)
	require.NoError(t, err)

	addr, err := sui.VerifySignature(tx, sig)
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), addr)

	other := base64.StdEncoding.EncodeToString([]byte("other-data"))
	_, err = sui.VerifySignature(other, sig)
	assert.Error(t, err)

	_, err = sui.VerifySignature(tx, base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
