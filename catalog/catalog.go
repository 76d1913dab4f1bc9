package catalog

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sort"
)

// CurrencyType routes a reward credit to one of the two balance ledgers.
type CurrencyType string

const (
	CurrencyGold  CurrencyType = "GOLD"  // primary play currency
	CurrencySweep CurrencyType = "SWEEP" // secondary, redeemable currency
)

func (c CurrencyType) Valid() bool {
	return c == CurrencyGold || c == CurrencySweep
}

// Rarity buckets rewards for display and reporting, ordered common to top.
type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityUncommon  Rarity = "UNCOMMON"
	RarityRare      Rarity = "RARE"
	RarityVeryRare  Rarity = "VERY_RARE"
	RarityUltraRare Rarity = "ULTRA_RARE"
	RarityTopReward Rarity = "TOP_REWARD"
)

func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityVeryRare, RarityUltraRare, RarityTopReward:
		return true
	}
	return false
}

// RewardDefinition is one wheel segment. ProbabilityWeight is a relative
// likelihood, not a normalized probability; the active set should sum to
// roughly 100 (validated, not enforced).
type RewardDefinition struct {
	ID                int          `json:"id"`
	Amount            float64      `json:"amount"`
	CurrencyType      CurrencyType `json:"currency_type"`
	Rarity            Rarity       `json:"rarity"`
	ProbabilityWeight float64      `json:"probability_weight"`
	Description       string       `json:"description"`
	Active            bool         `json:"active"`
}

// PublicReward is the client-facing projection. Probability weights are
// business-sensitive and never leave the server.
type PublicReward struct {
	ID           int          `json:"id"`
	Amount       float64      `json:"amount"`
	CurrencyType CurrencyType `json:"currencyType"`
	Rarity       Rarity       `json:"rarity"`
	Description  string       `json:"description"`
}

// Catalog is the reward table for one wheel. Read-only during draws;
// admin updates replace the whole catalog via the store.
type Catalog struct {
	WheelID string             `json:"wheel_id"`
	Rewards []RewardDefinition `json:"rewards"`
}

// active returns active definitions in ascending id order. The fixed order
// keeps cumulative-weight selection stable for a given catalog.
func (c *Catalog) active() []RewardDefinition {
	out := make([]RewardDefinition, 0, len(c.Rewards))
	for _, r := range c.Rewards {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TotalWeight sums the probability weights of active definitions.
func (c *Catalog) TotalWeight() float64 {
	var total float64
	for _, r := range c.active() {
		if r.ProbabilityWeight > 0 {
			total += r.ProbabilityWeight
		}
	}
	return total
}

// ListPublic returns the public projection of every active definition in
// id order (deterministic for a fixed catalog, so responses cache well).
func (c *Catalog) ListPublic() []PublicReward {
	defs := c.active()
	out := make([]PublicReward, 0, len(defs))
	for _, r := range defs {
		out = append(out, PublicReward{
			ID:           r.ID,
			Amount:       r.Amount,
			CurrencyType: r.CurrencyType,
			Rarity:       r.Rarity,
			Description:  r.Description,
		})
	}
	return out
}

const weightSumTarget = 100.0
const weightSumTolerance = 0.1

// Validation reports catalog misconfiguration for admin tooling. Issues
// are returned, never raised: a bad weight sum must not take draws offline.
type Validation struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues"`
	TotalWeight float64  `json:"totalWeight"`
}

// Validate checks the catalog for duplicate ids, non-positive amounts or
// weights, unknown enum values, and a weight sum drifting from 100.
func (c *Catalog) Validate() Validation {
	v := Validation{Valid: true, Issues: []string{}}
	seen := make(map[int]bool)
	for _, r := range c.Rewards {
		if seen[r.ID] {
			v.Issues = append(v.Issues, fmt.Sprintf("Duplicate reward id %d", r.ID))
		}
		seen[r.ID] = true
		if r.Amount <= 0 {
			v.Issues = append(v.Issues, fmt.Sprintf("Reward %d has non-positive amount %g", r.ID, r.Amount))
		}
		if r.ProbabilityWeight <= 0 {
			v.Issues = append(v.Issues, fmt.Sprintf("Reward %d has non-positive probability weight %g", r.ID, r.ProbabilityWeight))
		}
		if !r.CurrencyType.Valid() {
			v.Issues = append(v.Issues, fmt.Sprintf("Reward %d has unknown currency type %q", r.ID, r.CurrencyType))
		}
		if !r.Rarity.Valid() {
			v.Issues = append(v.Issues, fmt.Sprintf("Reward %d has unknown rarity %q", r.ID, r.Rarity))
		}
	}
	v.TotalWeight = c.TotalWeight()
	if math.Abs(v.TotalWeight-weightSumTarget) > weightSumTolerance {
		v.Issues = append(v.Issues, fmt.Sprintf("Total probability is %g%%, should be close to 100%%", v.TotalWeight))
	}
	if len(v.Issues) > 0 {
		v.Valid = false
	}
	return v
}

const sampleBits = 53

// secureFloat returns a uniform float64 in [0, 1) using crypto/rand.
// Reward value is money-equivalent, so a general-purpose PRNG is not
// acceptable here.
func secureFloat() float64 {
	v, err := rand.Int(rand.Reader, big.NewInt(1<<sampleBits))
	if err != nil {
		return 0
	}
	return float64(v.Int64()) / float64(int64(1)<<sampleBits)
}

// PickReward draws one definition by weight using the CSPRNG. Returns
// false only when the catalog has no active entry with positive weight.
func (c *Catalog) PickReward() (RewardDefinition, bool) {
	return c.pickAt(secureFloat())
}

// pickAt selects by a uniform sample in [0, 1): the sample is scaled by
// the total weight and the catalog is walked in fixed id order until the
// cumulative weight covers it. Split out so selection is testable with a
// fixed sample.
func (c *Catalog) pickAt(u float64) (RewardDefinition, bool) {
	defs := c.active()
	var total float64
	for _, d := range defs {
		if d.ProbabilityWeight > 0 {
			total += d.ProbabilityWeight
		}
	}
	if total <= 0 {
		return RewardDefinition{}, false
	}
	sample := u * total
	var cum float64
	for _, d := range defs {
		if d.ProbabilityWeight <= 0 {
			continue
		}
		cum += d.ProbabilityWeight
		if sample < cum {
			return d, true
		}
	}
	// Floating-point rounding at the upper boundary; must never select none.
	for _, d := range defs {
		if d.ProbabilityWeight > 0 {
			return d, true
		}
	}
	return RewardDefinition{}, false
}
