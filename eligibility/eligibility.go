package eligibility

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Source identifies which grant funded a consumed spin.
type Source string

const (
	SourceFirstTime Source = "first_time"
	SourceThreshold Source = "threshold"
	SourceRandom    Source = "random"
)

// ThresholdGrant is appended once when an account's cumulative spend
// crosses a configured threshold. SpinsConsumed grows as draws are funded
// from it; the entry itself is never removed.
type ThresholdGrant struct {
	ThresholdID    string    `json:"thresholdId"`
	SpendThreshold float64   `json:"spendThreshold"`
	SpinsAwarded   int       `json:"spinsAwarded"`
	SpinsConsumed  int       `json:"spinsConsumed"`
	ReachedAt      time.Time `json:"reachedAt"`
}

// State is the per-account spin budget. TotalSpinsAvailable always equals
// the sum of unexhausted grants across all three sources.
type State struct {
	AccountID                string           `json:"accountId"`
	FirstTimeGrantUsed       bool             `json:"firstTimeGrantUsed"`
	FirstTimeSpinsRemaining  int              `json:"firstTimeSpinsRemaining"`
	ThresholdGrants          []ThresholdGrant `json:"thresholdGrants"`
	RandomSpinsRemaining     int              `json:"randomSpinsRemaining"`
	TotalSpinsAvailable      int              `json:"totalSpinsAvailable"`
	LastRandomGrantCheckedAt time.Time        `json:"lastRandomGrantCheckedAt"`
	LastRandomGrantAt        time.Time        `json:"lastRandomGrantAt"`
}

// recount restores the TotalSpinsAvailable invariant after any mutation.
func (s *State) recount() {
	total := s.FirstTimeSpinsRemaining + s.RandomSpinsRemaining
	for _, g := range s.ThresholdGrants {
		total += g.SpinsAwarded - g.SpinsConsumed
	}
	s.TotalSpinsAvailable = total
}

// consumeOne decrements one spin in priority order: first-time grant,
// oldest unexhausted threshold grant, then random. Returns the funding
// source, or false when nothing is available.
func (s *State) consumeOne() (Source, bool) {
	if s.FirstTimeSpinsRemaining > 0 {
		s.FirstTimeSpinsRemaining--
		s.recount()
		return SourceFirstTime, true
	}
	oldest := -1
	for i, g := range s.ThresholdGrants {
		if g.SpinsConsumed >= g.SpinsAwarded {
			continue
		}
		if oldest < 0 || g.ReachedAt.Before(s.ThresholdGrants[oldest].ReachedAt) {
			oldest = i
		}
	}
	if oldest >= 0 {
		s.ThresholdGrants[oldest].SpinsConsumed++
		s.recount()
		return SourceThreshold, true
	}
	if s.RandomSpinsRemaining > 0 {
		s.RandomSpinsRemaining--
		s.recount()
		return SourceRandom, true
	}
	return "", false
}

// refundOne returns a consumed spin to its source, for draws that failed
// to persist after the consume.
func (s *State) refundOne(src Source) {
	switch src {
	case SourceFirstTime:
		s.FirstTimeSpinsRemaining++
	case SourceThreshold:
		// Newest partially-consumed grant gets the spin back; exact grant
		// attribution does not matter for the availability invariant.
		for i := len(s.ThresholdGrants) - 1; i >= 0; i-- {
			if s.ThresholdGrants[i].SpinsConsumed > 0 {
				s.ThresholdGrants[i].SpinsConsumed--
				break
			}
		}
	case SourceRandom:
		s.RandomSpinsRemaining++
	}
	s.recount()
}

// Consumption is the outcome of a consume attempt. A denied spin is a
// normal business result, not an error.
type Consumption struct {
	Allowed   bool   `json:"allowed"`
	Source    Source `json:"source,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
}

// Tracker gates how many draws an account may perform. Consume and refund
// are atomic per account; different accounts never block each other.
type Tracker interface {
	CheckAndConsumeOneSpin(ctx context.Context, accountID string) (*Consumption, error)
	RefundOneSpin(ctx context.Context, accountID string, src Source) error
	GrantFirstTime(ctx context.Context, accountID string, count int) error
	GrantThreshold(ctx context.Context, accountID, thresholdID string, spendThreshold float64, count int) error
	GrantRandomIfEligible(ctx context.Context, accountID string, probability float64, cooldownHours int) (bool, error)
	Get(ctx context.Context, accountID string) (*State, error)
}

// chance returns true with the given probability in [0, 1], using
// crypto/rand. Independent of the reward-selection randomness.
func chance(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	const bits = 53
	v, err := rand.Int(rand.Reader, big.NewInt(1<<bits))
	if err != nil {
		return false
	}
	return float64(v.Int64())/float64(int64(1)<<bits) < probability
}
