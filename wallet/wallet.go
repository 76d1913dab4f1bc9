package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/sweepvault/spinwheel-server/catalog"
)

// Balances are the two independent per-account ledgers. Gold and sweep
// accrue and redeem under different downstream rules and must never mix.
type Balances struct {
	AccountID string  `db:"account_id" json:"accountId"`
	Gold      float64 `db:"gold_balance" json:"gold"`
	Sweep     float64 `db:"sweep_balance" json:"sweep"`
}

// Credit is one increment against exactly one ledger. Ref carries the
// originating record (the draw id) for the transaction log.
type Credit struct {
	Currency catalog.CurrencyType
	Amount   float64
	Ref      string
}

// Transaction is one applied credit, kept as a permanent audit trail
// alongside the balances.
type Transaction struct {
	TxID         string               `db:"tx_id" json:"txId"`
	AccountID    string               `db:"account_id" json:"accountId"`
	CurrencyType catalog.CurrencyType `db:"currency_type" json:"currencyType"`
	Amount       float64              `db:"amount" json:"amount"`
	Ref          string               `db:"ref" json:"ref"`
	CreatedAt    time.Time            `db:"created_at" json:"createdAt"`
}

// Apply routes a credit onto the matching balance. This switch is the
// single place currency routing happens; an unknown currency is an error,
// never a default ledger.
func Apply(b *Balances, c Credit) (newBalance float64, err error) {
	switch c.Currency {
	case catalog.CurrencyGold:
		b.Gold += c.Amount
		return b.Gold, nil
	case catalog.CurrencySweep:
		b.Sweep += c.Amount
		return b.Sweep, nil
	default:
		return 0, fmt.Errorf("unknown currency type %q", c.Currency)
	}
}

// Store holds account balances. Credit returns the updated balance of the
// credited ledger only. Credits carrying a non-empty Ref are idempotent
// per ref: replaying one (claim retry, repair sweep) increments nothing.
type Store interface {
	Credit(ctx context.Context, accountID string, c Credit) (newBalance float64, err error)
	Balances(ctx context.Context, accountID string) (*Balances, error)
}
