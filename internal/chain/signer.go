package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Signer signs unsigned transfer transactions for a network identified by its
// generation hash.
type Signer interface {
	Sign(tx *TransferTransaction, generationHash string) (SignedTransaction, error)
	PublicKey() string
}

// AccountSigner signs with an ed25519 account private key.
type AccountSigner struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

var _ Signer = (*AccountSigner)(nil)

// NewAccountSigner creates a signer from a hex-encoded 32-byte private key
// seed.
func NewAccountSigner(privateKeyHex string) (*AccountSigner, error) {
	seed, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	private := ed25519.NewKeyFromSeed(seed)
	return &AccountSigner{
		private: private,
		public:  private.Public().(ed25519.PublicKey),
	}, nil
}

// PublicKey returns the hex-encoded signer public key.
func (s *AccountSigner) PublicKey() string {
	return hex.EncodeToString(s.public)
}

// Sign serializes the transaction, signs it bound to the network generation
// hash, and returns the announceable wrapper. The payload embeds signature,
// public key and body so the transaction can later be reconstructed from the
// payload alone.
func (s *AccountSigner) Sign(tx *TransferTransaction, generationHash string) (SignedTransaction, error) {
	body, err := tx.Serialize()
	if err != nil {
		return SignedTransaction{}, err
	}

	genHash, err := hex.DecodeString(generationHash)
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("decode generation hash: %w", err)
	}

	signing := make([]byte, 0, len(genHash)+len(body))
	signing = append(signing, genHash...)
	signing = append(signing, body...)
	signature := ed25519.Sign(s.private, signing)

	payload := make([]byte, 0, headerLength+len(body))
	payload = append(payload, signature...)
	payload = append(payload, s.public...)
	payload = append(payload, body...)

	return SignedTransaction{
		Payload:         hex.EncodeToString(payload),
		Hash:            transactionHash(signature, s.public, body),
		SignerPublicKey: s.PublicKey(),
		Type:            tx.Type,
		NetworkType:     tx.NetworkType,
	}, nil
}
