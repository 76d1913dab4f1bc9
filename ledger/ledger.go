package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sweepvault/spinwheel-server/catalog"
)

var (
	// ErrNotFound: no draw with that id belongs to that account.
	ErrNotFound = errors.New("draw not found")
	// ErrAlreadyClaimed: the claim transition already happened. From the
	// caller's point of view the reward was claimed; retrying is a no-op.
	ErrAlreadyClaimed = errors.New("draw already claimed")
)

// DrawRecord is one ledger entry. Reward fields are denormalized at draw
// time so later catalog edits never alter a past draw. Records are
// append-only and never deleted; ClaimedAt transitions from nil exactly
// once, CreditedAt is stamped after the balance credit lands.
type DrawRecord struct {
	DrawID       string               `db:"draw_id" json:"drawId"`
	AccountID    string               `db:"account_id" json:"accountId"`
	WheelID      string               `db:"wheel_id" json:"wheelId"`
	RewardID     int                  `db:"reward_id" json:"rewardId"`
	Amount       float64              `db:"amount" json:"amount"`
	CurrencyType catalog.CurrencyType `db:"currency_type" json:"currencyType"`
	Rarity       catalog.Rarity       `db:"rarity" json:"rarity"`
	Description  string               `db:"description" json:"description"`
	DrawnAt      time.Time            `db:"drawn_at" json:"drawnAt"`
	ClaimedAt    *time.Time           `db:"claimed_at" json:"claimedAt,omitempty"`
	CreditedAt   *time.Time           `db:"credited_at" json:"creditedAt,omitempty"`
	ClientIP     string               `db:"client_ip" json:"clientIp,omitempty"`
	UserAgent    string               `db:"user_agent" json:"userAgent,omitempty"`
}

// NewDrawID returns a 32-hex-char token from the CSPRNG. The draw id is
// the sole capability needed to claim, so it must be unguessable and
// non-enumerable.
func NewDrawID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// Stats is the admin aggregation over the ledger. ByCurrencyType sums
// claimed amounts per currency (what was actually disbursed).
type Stats struct {
	TotalDraws     int64              `json:"totalDraws"`
	ByRarity       map[string]int64   `json:"byRarity"`
	ByCurrencyType map[string]float64 `json:"byCurrencyType"`
}

// Store is the draw ledger. Claim must be an atomic conditional
// transition: two concurrent claims for one draw id resolve to exactly
// one winner and the loser observes ErrAlreadyClaimed. Isolation is
// per-draw; claims for different accounts never block each other.
type Store interface {
	Insert(ctx context.Context, rec *DrawRecord) error
	Claim(ctx context.Context, accountID, drawID string, now time.Time) (*DrawRecord, error)
	MarkCredited(ctx context.Context, drawID string, now time.Time) error
	UncreditedClaims(ctx context.Context, limit int) ([]*DrawRecord, error)
	History(ctx context.Context, accountID string, limit, offset int) ([]*DrawRecord, int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Recent(ctx context.Context, n int) ([]*DrawRecord, error)
}
