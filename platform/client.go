package platform

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sweepvault/spinwheel-server/ledger"
)

// Client posts reward events to the platform web app, which fans them out
// on its socket notification channel. Calls are best-effort: the claim
// result never depends on them.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewClient(baseURL, secret string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// sign returns the hex HMAC-SHA256 of the payload under the shared
// platform secret. Empty when no secret is configured.
func (c *Client) sign(body []byte) string {
	if c.secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// RewardClaimed notifies the platform that a claim credited a balance.
func (c *Client) RewardClaimed(ctx context.Context, rec *ledger.DrawRecord, newBalance float64) error {
	payload := map[string]interface{}{
		"type":       "wheel_reward_claimed",
		"accountId":  rec.AccountID,
		"drawId":     rec.DrawID,
		"wheelId":    rec.WheelID,
		"amount":     rec.Amount,
		"currency":   rec.CurrencyType,
		"rarity":     rec.Rarity,
		"newBalance": newBalance,
		"claimedAt":  rec.ClaimedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notifications/wheel", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sig := c.sign(body); sig != "" {
		req.Header.Set("X-Signature", sig)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var data struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &data)
		return fmt.Errorf("platform: %s", data.Error)
	}
	return nil
}
