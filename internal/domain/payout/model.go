// Package payout defines the payout entity and its lifecycle states.
package payout

import (
	"time"

	"github.com/earn-network/payout-engine/internal/storage"
)

// Collection is the document collection payouts persist in.
const Collection = "payouts"

// State is one step of the payout lifecycle. The ordering is the lifecycle
// order, not numerically monotonic: failures branch to negative values.
type State int

const (
	// StateNotEligible marks subjects whose computed reward was zero or
	// negative. Terminal; not an error.
	StateNotEligible State = -2
	// StateFailed marks payouts whose broadcast was never confirmed.
	StateFailed State = -1
	// StateNotStarted is the initial state before preparation.
	StateNotStarted State = 0
	// StatePrepared means a transfer transaction has been created and signed.
	StatePrepared State = 1
	// StateBroadcast means the signed transaction was announced to the network.
	StateBroadcast State = 2
	// StateConfirmed means the network confirmed the transaction.
	StateConfirmed State = 3
)

func (s State) String() string {
	switch s {
	case StateNotEligible:
		return "Not_Eligible"
	case StateFailed:
		return "Failed"
	case StateNotStarted:
		return "Not_Started"
	case StatePrepared:
		return "Prepared"
	case StateBroadcast:
		return "Broadcast"
	case StateConfirmed:
		return "Confirmed"
	default:
		return "Unknown"
	}
}

// Asset is one reward token entry: a mosaic identifier and an absolute
// integer amount.
type Asset struct {
	MosaicID string `json:"mosaicId"`
	Amount   int64  `json:"amount"`
}

// Payout tracks one reward transfer from computation to chain confirmation.
// It is never deleted; the collection acts as an audit log plus work queue.
//
// The (SubjectSlug, SubjectCollection, UserAddress) triple is the natural
// idempotency key: a payout document is created or updated through this key,
// never duplicated.
type Payout struct {
	SubjectSlug       string    `json:"subjectSlug"`
	SubjectCollection string    `json:"subjectCollection"`
	UserAddress       string    `json:"userAddress"`
	TransactionHash   string    `json:"transactionHash,omitempty"`
	Assets            []Asset   `json:"payoutAssets,omitempty"`
	State             State     `json:"payoutState"`
	SignedBytes       string    `json:"signedBytes,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ToQuery projects the natural idempotency key.
func (p Payout) ToQuery() map[string]interface{} {
	return map[string]interface{}{
		"subjectSlug":       p.SubjectSlug,
		"subjectCollection": p.SubjectCollection,
		"userAddress":       p.UserAddress,
	}
}

// ToDocument returns the full persisted field set.
func (p Payout) ToDocument() storage.Document {
	doc := storage.Document{
		"subjectSlug":       p.SubjectSlug,
		"subjectCollection": p.SubjectCollection,
		"userAddress":       p.UserAddress,
		"payoutState":       int(p.State),
	}
	if p.TransactionHash != "" {
		doc["transactionHash"] = p.TransactionHash
	}
	if p.SignedBytes != "" {
		doc["signedBytes"] = p.SignedBytes
	}
	if len(p.Assets) > 0 {
		assets := make([]interface{}, len(p.Assets))
		for i, a := range p.Assets {
			assets[i] = storage.Document{"mosaicId": a.MosaicID, "amount": a.Amount}
		}
		doc["payoutAssets"] = assets
	}
	return doc
}

// FromDocument rebuilds a payout from its stored form.
func FromDocument(doc storage.Document) Payout {
	p := Payout{
		SubjectSlug:       asString(doc["subjectSlug"]),
		SubjectCollection: asString(doc["subjectCollection"]),
		UserAddress:       asString(doc["userAddress"]),
		TransactionHash:   asString(doc["transactionHash"]),
		SignedBytes:       asString(doc["signedBytes"]),
		State:             State(asInt(doc["payoutState"])),
	}
	if t, ok := doc["createdAt"].(time.Time); ok {
		p.CreatedAt = t
	}
	if t, ok := doc["updatedAt"].(time.Time); ok {
		p.UpdatedAt = t
	}
	if raw, ok := doc["payoutAssets"].([]interface{}); ok {
		for _, entry := range raw {
			if m, ok := entry.(storage.Document); ok {
				p.Assets = append(p.Assets, Asset{
					MosaicID: asString(m["mosaicId"]),
					Amount:   asInt(m["amount"]),
				})
			} else if m, ok := entry.(map[string]interface{}); ok {
				p.Assets = append(p.Assets, Asset{
					MosaicID: asString(m["mosaicId"]),
					Amount:   asInt(m["amount"]),
				})
			}
		}
	}
	return p
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
