package kasa

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// initialKey seeds the autokey XOR cipher used by the local protocol.
const initialKey byte = 171

// headerSize is the length of the big-endian size prefix on TCP frames.
const headerSize = 4

var (
	// errShortFrame is returned when a frame is smaller than its header.
	errShortFrame = errors.New("frame shorter than header")
	// errFrameSize is returned when the header disagrees with the payload length.
	errFrameSize = errors.New("unexpected frame size")
)

// Encrypt scrambles a JSON payload and prefixes it with its length,
// producing a frame ready to be written to a TCP connection.
func Encrypt(payload []byte) []byte {
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload))) //nolint:gosec // Payloads are small JSON documents.
	scramble(frame[headerSize:], payload)

	return frame
}

// Decrypt validates the length prefix of a TCP frame and unscrambles its payload.
func Decrypt(frame []byte) ([]byte, error) {
	if len(frame) < headerSize {
		return nil, errShortFrame
	}

	expected := int(binary.BigEndian.Uint32(frame))
	if expected != len(frame)-headerSize {
		return nil, fmt.Errorf("%w: expected %d bytes but received %d", errFrameSize, expected, len(frame)-headerSize)
	}

	payload := make([]byte, expected)
	unscramble(payload, frame[headerSize:])

	return payload, nil
}

// EncryptDatagram scrambles a payload for UDP, which carries no length prefix.
func EncryptDatagram(payload []byte) []byte {
	out := make([]byte, len(payload))
	scramble(out, payload)

	return out
}

// DecryptDatagram reverses EncryptDatagram.
func DecryptDatagram(datagram []byte) []byte {
	out := make([]byte, len(datagram))
	unscramble(out, datagram)

	return out
}

// scramble XORs every byte with the previous cipher byte.
func scramble(dst, src []byte) {
	key := initialKey
	for i, ch := range src {
		key ^= ch
		dst[i] = key
	}
}

// unscramble XORs every byte with the previous cipher byte.
func unscramble(dst, src []byte) {
	key := initialKey
	for i, ch := range src {
		dst[i] = key ^ ch
		key = ch
	}
}
