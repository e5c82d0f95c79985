package store

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealVersion   = 1
	saltSize      = 16
	argonTime     = 2
	argonMemoryKB = 19 * 1024
	argonThreads  = 1
)

var (
	errNotSealed  = errors.New("session file is not sealed")
	sealAssocData = []byte("thinkora-session-v1")
)

type sealedEnvelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// sealer encrypts session documents with XChaCha20-Poly1305 under a key
// derived from a passphrase with Argon2id. Derived keys are cached per salt.
type sealer struct {
	passphrase []byte

	mu   sync.Mutex
	salt []byte
	keys map[string][]byte
}

func newSealer(passphrase string) *sealer {
	return &sealer{passphrase: []byte(passphrase), keys: map[string][]byte{}}
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	s.mu.Lock()
	if s.salt == nil {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		s.salt = salt
	}
	salt := s.salt
	key := s.keyLocked(salt)
	s.mu.Unlock()

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return json.Marshal(sealedEnvelope{
		Version: sealVersion,
		Salt:    salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, plain, sealAssocData),
	})
}

func (s *sealer) open(raw []byte) ([]byte, error) {
	var env sealedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version == 0 || len(env.Salt) == 0 {
		return nil, errNotSealed
	}
	if env.Version != sealVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}

	s.mu.Lock()
	key := s.keyLocked(env.Salt)
	if s.salt == nil {
		s.salt = bytes.Clone(env.Salt)
	}
	s.mu.Unlock()

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(env.Nonce))
	}

	plain, err := aead.Open(nil, env.Nonce, env.Data, sealAssocData)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return plain, nil
}

func (s *sealer) keyLocked(salt []byte) []byte {
	if key, ok := s.keys[string(salt)]; ok {
		return key
	}
	key := argon2.IDKey(s.passphrase, salt, argonTime, argonMemoryKB, argonThreads, chacha20poly1305.KeySize)
	s.keys[string(salt)] = key
	return key
}
