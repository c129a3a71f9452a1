package federated

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// StateManager round-trips the OAuth state parameter. The encoded form must
// be tamper evident: the callback trusts everything inside it, including the
// PKCE verifier and the link target.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState travels through the provider redirect inside the state
// parameter. JSON tags stay short to keep the redirect URL small.
type OAuthState struct {
	Nonce        string `json:"n"`
	Provider     string `json:"p"`
	CodeVerifier string `json:"cv,omitempty"`
	RedirectURL  string `json:"r,omitempty"`
	Action       string `json:"a"`
	LinkUserID   string `json:"lu,omitempty"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

const stateVersion byte = 1

// EncryptedStateManager seals state with AES-256-GCM and authenticates the
// envelope with HMAC-SHA256. Wire format, base64url encoded:
//
//	version || nonce || ciphertext || mac(version || nonce || ciphertext)
//
// Both keys are derived by hashing the caller's secrets, so any secret
// length is accepted.
type EncryptedStateManager struct {
	aesKey [32]byte
	macKey [32]byte
	ttl    time.Duration
}

// NewEncryptedStateManager builds a state manager from two independent
// secrets. A zero ttl defaults to 10 minutes.
func NewEncryptedStateManager(encryptionSecret, hmacSecret []byte, ttl time.Duration) *EncryptedStateManager {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &EncryptedStateManager{
		aesKey: sha256.Sum256(encryptionSecret),
		macKey: sha256.Sum256(hmacSecret),
		ttl:    ttl,
	}
}

// Encode stamps missing timestamps and nonce, then seals the state.
func (sm *EncryptedStateManager) Encode(state *OAuthState) (string, error) {
	if state == nil {
		return "", ErrInvalidState
	}

	now := time.Now()
	if state.IssuedAt == 0 {
		state.IssuedAt = now.Unix()
	}
	if state.ExpiresAt == 0 {
		state.ExpiresAt = now.Add(sm.ttl).Unix()
	}
	if state.Nonce == "" {
		state.Nonce = generateNonce()
	}

	plaintext, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	envelope, err := sm.seal(plaintext)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(envelope), nil
}

// Decode authenticates, decrypts, and expiry-checks an encoded state.
func (sm *EncryptedStateManager) Decode(token string) (*OAuthState, error) {
	envelope, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	plaintext, err := sm.open(envelope)
	if err != nil {
		return nil, err
	}

	var state OAuthState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if time.Now().Unix() > state.ExpiresAt {
		return nil, ErrStateExpired
	}

	return &state, nil
}

func (sm *EncryptedStateManager) seal(plaintext []byte) ([]byte, error) {
	gcm, err := sm.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	envelope := make([]byte, 0, 1+len(nonce)+len(plaintext)+gcm.Overhead()+sha256.Size)
	envelope = append(envelope, stateVersion)
	envelope = append(envelope, nonce...)
	envelope = gcm.Seal(envelope, nonce, plaintext, nil)

	mac := hmac.New(sha256.New, sm.macKey[:])
	mac.Write(envelope)
	return mac.Sum(envelope), nil
}

func (sm *EncryptedStateManager) open(envelope []byte) ([]byte, error) {
	gcm, err := sm.gcm()
	if err != nil {
		return nil, err
	}

	minLen := 1 + gcm.NonceSize() + sha256.Size
	if len(envelope) < minLen {
		return nil, ErrInvalidState
	}

	signed := envelope[:len(envelope)-sha256.Size]
	signature := envelope[len(envelope)-sha256.Size:]

	mac := hmac.New(sha256.New, sm.macKey[:])
	mac.Write(signed)
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return nil, ErrInvalidState
	}

	if signed[0] != stateVersion {
		return nil, ErrInvalidState
	}

	nonce := signed[1 : 1+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, signed[1+gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrInvalidState
	}

	return plaintext, nil
}

func (sm *EncryptedStateManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sm.aesKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
