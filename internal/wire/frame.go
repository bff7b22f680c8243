// Package wire implements the length-prefixed, optionally encrypted frame
// envelope shared by the client port and the cluster bus port: each frame is
// encrypt(payload) prefixed by a 4-byte big-endian length header.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tokmesh/cluster/pkg/crypto/adaptive"
)

// MaxFrameLen bounds a single frame to guard against a corrupt or hostile
// length header forcing an unbounded allocation.
const MaxFrameLen = 64 * 1024 * 1024

// WriteFrame encrypts payload (if cipher is non-nil) and writes it to w
// prefixed by its length.
func WriteFrame(w io.Writer, cipher adaptive.Cipher, payload []byte) error {
	body := payload
	if cipher != nil {
		enc, err := cipher.Encrypt(payload, nil)
		if err != nil {
			return fmt.Errorf("wire: encrypt frame: %w", err)
		}
		body = enc
	}

	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(body)))
	if _, err := w.Write(lb[:]); err != nil {
		return fmt.Errorf("wire: write length header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and decrypts it (if
// cipher is non-nil), returning the plaintext payload.
func ReadFrame(r io.Reader, cipher adaptive.Cipher) ([]byte, error) {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lb[:])
	if n > MaxFrameLen {
		return nil, fmt.Errorf("wire: frame length %d exceeds limit %d", n, MaxFrameLen)
	}
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("wire: read frame body: %w", err)
		}
	}
	if cipher == nil {
		return body, nil
	}
	plain, err := cipher.Decrypt(body, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: decrypt frame: %w", err)
	}
	return plain, nil
}
