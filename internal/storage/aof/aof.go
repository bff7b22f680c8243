// Package aof implements the append-only command log: a text file of
// executed mutating commands, one per line, with user-data tokens
// hex-encoded ciphertext and the remaining tokens left as plaintext.
package aof

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tokmesh/cluster/internal/telemetry/metric"
	"github.com/tokmesh/cluster/pkg/crypto/adaptive"
)

// Log guards the AOF file behind a single writer lock: the append contract
// requires the write to be synchronous with respect to the client's
// acknowledgment, so Append never returns before the bytes have hit the
// file (best-effort fsync semantics of os.File.Write plus an explicit
// Sync call).
type Log struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	cipher  adaptive.Cipher
	metrics *metric.Registry
}

// Open opens (creating if absent) the AOF file for appending.
func Open(path string, cipher adaptive.Cipher) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("aof: open %s: %w", path, err)
	}
	return &Log{path: path, file: f, cipher: cipher}, nil
}

// SetMetrics wires the metrics registry. A nil registry leaves append
// counting a no-op.
func (l *Log) SetMetrics(m *metric.Registry) {
	l.metrics = m
}

// Append encrypts the tokens listed in dataIndices, leaves the rest as
// plaintext, joins them with spaces, and synchronously writes one
// newline-terminated record.
func (l *Log) Append(tokens []string, dataIndices []int) error {
	isData := make(map[int]bool, len(dataIndices))
	for _, i := range dataIndices {
		isData[i] = true
	}

	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if isData[i] {
			enc, err := l.encrypt([]byte(tok))
			if err != nil {
				return fmt.Errorf("aof: encrypt token %d: %w", i, err)
			}
			out[i] = hex.EncodeToString(enc)
		} else {
			out[i] = tok
		}
	}

	line := strings.Join(out, " ") + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("aof: write: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.AOFAppendsTotal.Inc()
	}
	return nil
}

// Truncate zeroes the file and rewinds the write offset, called by the
// snapshot writer once a snapshot completes successfully.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("aof: truncate: %w", err)
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("aof: seek: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Log) encrypt(plain []byte) ([]byte, error) {
	if l.cipher == nil {
		return plain, nil
	}
	return l.cipher.Encrypt(plain, nil)
}

func (l *Log) decrypt(enc []byte) ([]byte, error) {
	if l.cipher == nil {
		return enc, nil
	}
	return l.cipher.Decrypt(enc, nil)
}

// DataIndexLookup resolves, for a command name, which token indices carry
// hex-encoded ciphertext. It is satisfied by the executor's command table.
type DataIndexLookup func(commandName string) (indices []int, ok bool)

// Replay reads the AOF line by line, decrypts each line's data tokens using
// lookup to learn which indices are ciphertext, and invokes apply with the
// reconstructed plaintext tokens. A malformed line is reported through err;
// callers decide per §4.2's restore protocol whether that is fatal
// (snapshot failed) or merely logged (snapshot succeeded).
func Replay(path string, cipher adaptive.Cipher, lookup DataIndexLookup, apply func(tokens []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("aof: open %s: %w", path, err)
	}
	defer f.Close()

	l := &Log{cipher: cipher}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		tokens := strings.Split(line, " ")
		if len(tokens) == 0 {
			continue
		}
		indices, _ := lookup(tokens[0])
		isData := make(map[int]bool, len(indices))
		for _, i := range indices {
			isData[i] = true
		}
		plain := make([]string, len(tokens))
		for i, tok := range tokens {
			if isData[i] {
				raw, err := hex.DecodeString(tok)
				if err != nil {
					return fmt.Errorf("aof: line %d: invalid hex token: %w", lineNo, err)
				}
				dec, err := l.decrypt(raw)
				if err != nil {
					return fmt.Errorf("aof: line %d: decrypt: %w", lineNo, err)
				}
				plain[i] = string(dec)
			} else {
				plain[i] = tok
			}
		}
		if err := apply(plain); err != nil {
			return fmt.Errorf("aof: line %d: apply: %w", lineNo, err)
		}
	}
	return scanner.Err()
}
