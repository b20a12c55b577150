// Package storage implements the encrypted-file envelope spec.md §4.9
// requires for persisted whiteboard cursors: AES-256-CBC over a
// PBKDF2-HMAC-SHA256 derived key, salted per install. The host's own
// file I/O (sdk.HostCallbacks.ReadFile/WriteFile) is the only thing this
// package touches the filesystem through, mirroring how channeldb.DB
// in the teacher never opens a file directly but always goes through
// its injected bolt.Open handle.
package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/go-errors/errors"
	"golang.org/x/crypto/pbkdf2"
)

// ErrCorruptEnvelope is returned when a stored file is shorter than one
// cipher block or its padding is malformed.
var ErrCorruptEnvelope = errors.New("storage: corrupt envelope")

const (
	keyLen        = 32 // AES-256
	saltLen       = 16
	pbkdf2Rounds  = 100000
	saltFileName  = ".racecomms-salt"
)

// exemptFiles are well-known test fixtures that pass through unencrypted,
// so integration harnesses can seed/inspect them directly.
var exemptFiles = map[string]bool{
	"jaeger-config.yml": true,
	"deployment.txt":    true,
}

// IsExempt reports whether name bypasses the envelope.
func IsExempt(name string) bool {
	return exemptFiles[name]
}

// fileIO is the subset of sdk.HostCallbacks this package needs; kept
// narrow and unexported so storage has no import-time dependency on sdk and
// any type with these two methods (a full HostCallbacks or a test fake)
// satisfies it.
type fileIO interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

// Envelope derives keys and seals/opens files for a single passphrase.
type Envelope struct {
	io         fileIO
	saltPath   string
	passphrase string

	key []byte
}

// NewEnvelope loads (or creates, on first use) the per-install salt at
// saltPath beneath the host's etc directory and derives the AES key.
func NewEnvelope(io fileIO, saltPath, passphrase string) (*Envelope, error) {
	salt, err := io.ReadFile(saltPath)
	if err != nil || len(salt) != saltLen {
		salt = make([]byte, saltLen)
		if _, rerr := rand.Read(salt); rerr != nil {
			return nil, fmt.Errorf("storage: generating salt: %w", rerr)
		}
		if werr := io.WriteFile(saltPath, salt); werr != nil {
			return nil, fmt.Errorf("storage: persisting salt: %w", werr)
		}
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Rounds, keyLen, sha256.New)
	return &Envelope{io: io, saltPath: saltPath, passphrase: passphrase, key: key}, nil
}

// Seal encrypts plaintext as iv ‖ AES-256-CBC(PKCS7(plaintext)).
func (e *Envelope) Seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	out := make([]byte, len(iv)+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(iv):], padded)
	return out, nil
}

// Open decrypts an envelope produced by Seal.
func (e *Envelope) Open(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(sealed) < bs || (len(sealed)-bs)%bs != 0 {
		return nil, ErrCorruptEnvelope
	}

	iv, ct := sealed[:bs], sealed[bs:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	return pkcs7Unpad(plain, bs)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	pad := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), data...), pad...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrCorruptEnvelope
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrCorruptEnvelope
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrCorruptEnvelope
		}
	}
	return data[:len(data)-padLen], nil
}

// FileCursorStore implements link.CursorStore on top of an Envelope and the
// host's file I/O, rooted at a single directory (one file per cursor key,
// the key itself sanitized into a filename).
type FileCursorStore struct {
	io   fileIO
	dir  string
	env  *Envelope
}

// NewFileCursorStore constructs a store rooted at dir, using env to seal
// every file except the well-known exempt fixtures.
func NewFileCursorStore(io fileIO, dir string, env *Envelope) *FileCursorStore {
	return &FileCursorStore{io: io, dir: dir, env: env}
}

func (s *FileCursorStore) path(key string) string {
	return s.dir + "/" + sanitizeKey(key)
}

func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_' || r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Load reads and, unless the key names an exempt file, decrypts the cursor
// value at key. ok is false when the file does not exist yet.
func (s *FileCursorStore) Load(key string) (string, bool, error) {
	raw, err := s.io.ReadFile(s.path(key))
	if err != nil {
		return "", false, nil
	}

	if IsExempt(sanitizeKey(key)) {
		return string(raw), true, nil
	}

	plain, err := s.env.Open(raw)
	if err != nil {
		return "", false, err
	}
	return string(plain), true, nil
}

// Save encrypts (unless exempt) and writes value at key.
func (s *FileCursorStore) Save(key, value string) error {
	if IsExempt(sanitizeKey(key)) {
		return s.io.WriteFile(s.path(key), []byte(value))
	}

	sealed, err := s.env.Seal([]byte(value))
	if err != nil {
		return err
	}
	return s.io.WriteFile(s.path(key), sealed)
}
