package catalog

import (
	"encoding/json"
	"fmt"
)

// wheelFile is the admin-authored wheel bundle format (wheel.json).
// Probabilities are percentages; since the active set should sum to 100
// they double as probability weights.
type wheelFile struct {
	WheelID string            `json:"wheel_id"`
	Rewards []wheelFileReward `json:"rewards"`
}

type wheelFileReward struct {
	ID           int     `json:"id"`
	Amount       float64 `json:"amount"`
	CurrencyType string  `json:"currency_type"`
	Rarity       string  `json:"rarity"`
	Probability  float64 `json:"probability"`
	Description  string  `json:"description"`
	Active       *bool   `json:"active,omitempty"` // default true
}

// ParseWheelFile converts a wheel.json payload into a Catalog. Shape
// errors (bad JSON, missing wheel id, empty table) fail here; content
// problems are left for Validate so admins see them as issues, not errors.
func ParseWheelFile(data []byte) (*Catalog, error) {
	var f wheelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse wheel file: %w", err)
	}
	if f.WheelID == "" {
		return nil, fmt.Errorf("wheel file missing wheel_id")
	}
	if len(f.Rewards) == 0 {
		return nil, fmt.Errorf("wheel file %q has no rewards", f.WheelID)
	}
	c := &Catalog{WheelID: f.WheelID}
	for _, r := range f.Rewards {
		active := true
		if r.Active != nil {
			active = *r.Active
		}
		c.Rewards = append(c.Rewards, RewardDefinition{
			ID:                r.ID,
			Amount:            r.Amount,
			CurrencyType:      CurrencyType(r.CurrencyType),
			Rarity:            Rarity(r.Rarity),
			ProbabilityWeight: r.Probability,
			Description:       r.Description,
			Active:            active,
		})
	}
	return c, nil
}
