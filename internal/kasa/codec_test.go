package kasa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEncrypt_KnownPrefix checks the header and the first scrambled bytes of a sysinfo query.
func TestEncrypt_KnownPrefix(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"system":{"get_sysinfo":{}}}`)
	frame := Encrypt(payload)

	require.Len(t, frame, len(payload)+headerSize)
	require.Equal(t, []byte{0x00, 0x00, 0x00, byte(len(payload))}, frame[:headerSize])
	// '{' ^ 171 = 0xd0, then '"' ^ 0xd0 = 0xf2.
	require.Equal(t, []byte{0xd0, 0xf2}, frame[headerSize:headerSize+2])
}

// TestEncryptDecrypt verifies that a frame decrypts back to its payload.
func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"system":{"set_relay_state":{"state":1}}}`)

	decrypted, err := Decrypt(Encrypt(payload))
	require.NoError(t, err)
	require.Equal(t, payload, decrypted)
}

// TestDecrypt_BadFrames asserts that truncated or inconsistent frames are rejected.
func TestDecrypt_BadFrames(t *testing.T) {
	t.Parallel()

	_, err := Decrypt([]byte{0x00, 0x01})
	require.ErrorIs(t, err, errShortFrame)

	frame := Encrypt([]byte(`{"a":1}`))
	_, err = Decrypt(frame[:len(frame)-1])
	require.ErrorIs(t, err, errFrameSize)
}

// TestDatagram verifies that UDP payloads carry no header and round-trip.
func TestDatagram(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"system":{"get_sysinfo":{}}}`)
	datagram := EncryptDatagram(payload)

	require.Len(t, datagram, len(payload))
	require.Equal(t, Encrypt(payload)[headerSize:], datagram)
	require.Equal(t, payload, DecryptDatagram(datagram))
}
