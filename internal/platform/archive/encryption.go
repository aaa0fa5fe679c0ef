package archive

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// Encryptor seals archived text with AES-256-GCM. Ciphertext is base64 of
// nonce followed by the sealed bytes.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("archive encryptor: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("archive encryptor: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("archive encryptor: create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// ParseKey decodes a base64 (standard encoding) key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("archive key: %w", err)
	}
	return key, nil
}

func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("archive encrypt: generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("archive decrypt: base64 decode: %w", err)
	}
	n := e.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("archive decrypt: ciphertext too short")
	}
	plaintext, err := e.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("archive decrypt: %w", err)
	}
	return string(plaintext), nil
}

// EncryptedStore encrypts Entry.Raw and Entry.Decoded before they reach the
// wrapped Store and decrypts them on the way out. Decoded is stored as a JSON
// string holding the ciphertext so it still fits a JSONB column. ControlID and
// MessageType stay in clear for lookups.
type EncryptedStore struct {
	store Store
	enc   *Encryptor
}

// NewEncryptedStore wraps store.
func NewEncryptedStore(store Store, enc *Encryptor) *EncryptedStore {
	return &EncryptedStore{store: store, enc: enc}
}

// Save implements Store.
func (s *EncryptedStore) Save(ctx context.Context, e *Entry) error {
	sealed, err := s.enc.Encrypt(e.Raw)
	if err != nil {
		return err
	}
	decoded, err := s.sealDecoded(e.Decoded)
	if err != nil {
		return err
	}
	cp := *e
	cp.Raw = sealed
	cp.Decoded = decoded
	return s.store.Save(ctx, &cp)
}

// List implements Store.
func (s *EncryptedStore) List(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	entries, total, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, e := range entries {
		raw, err := s.enc.Decrypt(e.Raw)
		if err != nil {
			return nil, 0, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		decoded, err := s.openDecoded(e.Decoded)
		if err != nil {
			return nil, 0, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		e.Raw = raw
		e.Decoded = decoded
	}
	return entries, total, nil
}

func (s *EncryptedStore) sealDecoded(decoded json.RawMessage) (json.RawMessage, error) {
	sealed, err := s.enc.Encrypt(string(decoded))
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealed)
}

func (s *EncryptedStore) openDecoded(stored json.RawMessage) (json.RawMessage, error) {
	var sealed string
	if err := json.Unmarshal(stored, &sealed); err != nil {
		return nil, fmt.Errorf("archive decrypt: decoded is not a sealed string: %w", err)
	}
	plain, err := s.enc.Decrypt(sealed)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(plain), nil
}
