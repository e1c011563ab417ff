// Package chain provides transfer transaction construction, account signing
// and network announcement for the payout engine's target ledger.
package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// TypeTransfer is the wire type tag of a transfer transaction.
const TypeTransfer uint16 = 0x4154

// Mosaic attaches one token amount to a transfer.
type Mosaic struct {
	MosaicID string `json:"mosaicId"`
	Amount   int64  `json:"amount"`
}

// EarnContract is the application-level payload embedded as the transfer
// message. It is the on-chain-visible artifact of a payout and its encoded
// form must stay stable across releases.
type EarnContract struct {
	DappIdentifier string `json:"dappIdentifier"`
	Version        int    `json:"version"`
	Date           string `json:"date"` // YYYY-MM-DD, subject creation date
	Asset          string `json:"asset"`
	Amount         int64  `json:"amount"`
}

// NewEarnContract builds the version-1 earn contract payload.
func NewEarnContract(dappIdentifier, date, asset string, amount int64) EarnContract {
	return EarnContract{
		DappIdentifier: dappIdentifier,
		Version:        1,
		Date:           date,
		Asset:          asset,
		Amount:         amount,
	}
}

// Message serializes the contract for embedding in a transfer transaction.
func (c EarnContract) Message() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode earn contract: %w", err)
	}
	return data, nil
}

// TransferTransaction is an unsigned token transfer.
type TransferTransaction struct {
	RecipientAddress string   `json:"recipientAddress"`
	Mosaics          []Mosaic `json:"mosaics"`
	Message          []byte   `json:"message,omitempty"`
	NetworkType      uint8    `json:"networkType"`
	Type             uint16   `json:"type"`
}

// NewTransferTransaction builds an unsigned transfer.
func NewTransferTransaction(recipient string, mosaics []Mosaic, message []byte, networkType uint8) *TransferTransaction {
	return &TransferTransaction{
		RecipientAddress: recipient,
		Mosaics:          mosaics,
		Message:          message,
		NetworkType:      networkType,
		Type:             TypeTransfer,
	}
}

// Serialize produces the canonical unsigned transaction bytes.
func (t *TransferTransaction) Serialize() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("serialize transfer: %w", err)
	}
	return data, nil
}

// SignedTransaction wraps a signed transfer ready for announcement.
type SignedTransaction struct {
	Payload         string `json:"payload"` // hex: signature || signer public key || body
	Hash            string `json:"hash"`
	SignerPublicKey string `json:"signerPublicKey"`
	Type            uint16 `json:"type"`
	NetworkType     uint8  `json:"networkType"`
}

const (
	signatureLength = ed25519.SignatureSize
	publicKeyLength = ed25519.PublicKeySize
	headerLength    = signatureLength + publicKeyLength
)

// Deserialize reconstructs a signed transfer from a stored payload. The
// payload is not embedded in any outer envelope; it is the exact hex written
// at signing time. Corrupt payloads fail here, before any network call.
func Deserialize(payload string) (*TransferTransaction, SignedTransaction, error) {
	raw, err := hex.DecodeString(payload)
	if err != nil {
		return nil, SignedTransaction{}, fmt.Errorf("decode signed payload: %w", err)
	}
	if len(raw) <= headerLength {
		return nil, SignedTransaction{}, fmt.Errorf("signed payload too short: %d bytes", len(raw))
	}

	signature := raw[:signatureLength]
	publicKey := raw[signatureLength:headerLength]
	body := raw[headerLength:]

	var tx TransferTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, SignedTransaction{}, fmt.Errorf("decode transfer body: %w", err)
	}

	signed := SignedTransaction{
		Payload:         payload,
		Hash:            transactionHash(signature, publicKey, body),
		SignerPublicKey: hex.EncodeToString(publicKey),
		Type:            tx.Type,
		NetworkType:     tx.NetworkType,
	}
	return &tx, signed, nil
}

// transactionHash derives the unique hash of a signed transaction.
func transactionHash(signature, publicKey, body []byte) string {
	h := sha3.New256()
	h.Write(signature)
	h.Write(publicKey)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
