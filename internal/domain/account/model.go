// Package account defines the account subject used by referral booster
// payouts.
package account

import (
	"time"

	"github.com/earn-network/payout-engine/internal/domain/payout"
	"github.com/earn-network/payout-engine/internal/storage"
)

// Collection is the document collection accounts persist in.
const Collection = "accounts"

// Account is a registered user account. For booster payouts the account
// itself is the subject; its address doubles as the subject slug.
type Account struct {
	Slug          string
	Address       string
	ReferralCount int64
	PayoutState   payout.State
	CreatedAt     time.Time
}

// ToQuery projects the account's natural key.
func (a Account) ToQuery() map[string]interface{} {
	return map[string]interface{}{"address": a.Address}
}

// ToDocument returns the full persisted field set.
func (a Account) ToDocument() storage.Document {
	return storage.Document{
		"slug":          a.Slug,
		"address":       a.Address,
		"referralCount": a.ReferralCount,
		"payoutState":   int(a.PayoutState),
	}
}

// FromDocument rebuilds an account from its stored form.
func FromDocument(doc storage.Document) Account {
	a := Account{
		Slug:        asString(doc["slug"]),
		Address:     asString(doc["address"]),
		PayoutState: payout.State(asInt(doc["payoutState"])),
	}
	a.ReferralCount = asInt(doc["referralCount"])
	if a.Slug == "" {
		a.Slug = a.Address
	}
	if t, ok := doc["createdAt"].(time.Time); ok {
		a.CreatedAt = t
	}
	return a
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
