package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sweepvault/spinwheel-server/catalog"
	"github.com/sweepvault/spinwheel-server/config"
	"github.com/sweepvault/spinwheel-server/eligibility"
	"github.com/sweepvault/spinwheel-server/ledger"
	"github.com/sweepvault/spinwheel-server/spin"
	"github.com/sweepvault/spinwheel-server/wallet"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	catalogs := catalog.NewStore(dir)
	require.NoError(t, catalogs.Register(&catalog.Catalog{
		WheelID: "daily_wheel",
		Rewards: []catalog.RewardDefinition{
			{ID: 1, Amount: 100, CurrencyType: catalog.CurrencyGold, Rarity: catalog.RarityCommon, ProbabilityWeight: 100, Description: "100 Gold Coins", Active: true},
		},
	}))
	led := ledger.NewFileStore(dir)
	wal := wallet.NewFileStore(dir)
	trk := eligibility.NewFileStore(dir)
	s := &Server{
		cfg:      &config.Config{DataDir: dir, SpinRatePerMin: 1000, RecentDraws: 5},
		catalogs: catalogs,
		tracker:  trk,
		wallet:   wal,
		engine:   spin.NewEngine(catalogs, led, wal, nil),
		limiter:  newIPLimiter(1000),
	}
	ts := httptest.NewServer(s.handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealth(t *testing.T) {
	_, ts := testServer(t)
	resp, body := getJSON(t, ts.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestCatalogEndpoint_HidesWeights(t *testing.T) {
	_, ts := testServer(t)
	resp, body := getJSON(t, ts.URL+"/wheel/daily_wheel/catalog")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rewards := body["rewards"].([]interface{})
	require.Len(t, rewards, 1)
	first := rewards[0].(map[string]interface{})
	require.Equal(t, "100 Gold Coins", first["description"])
	_, hasWeight := first["probability_weight"]
	require.False(t, hasWeight, "weights must not reach clients")

	resp, _ = getJSON(t, ts.URL+"/wheel/nope/catalog")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSpinDeniedWithoutEligibility(t *testing.T) {
	_, ts := testServer(t)
	resp, body := postJSON(t, ts.URL+"/wheel/daily_wheel/spin", `{"accountId":"acct1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["allowed"])
	require.NotEmpty(t, body["reason"])
}

func TestSpinClaimRoundTrip(t *testing.T) {
	_, ts := testServer(t)

	resp, _ := postJSON(t, ts.URL+"/eligibility/grant", `{"accountId":"acct1","type":"first_time","count":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, ts.URL+"/wheel/daily_wheel/spin", `{"accountId":"acct1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["allowed"])
	require.Equal(t, "first_time", body["source"])
	draw := body["draw"].(map[string]interface{})
	drawID := draw["drawId"].(string)
	require.Len(t, drawID, 32)

	resp, body = postJSON(t, ts.URL+"/wheel/claim", `{"accountId":"acct1","drawId":"`+drawID+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 100, body["newBalance"])

	// Claiming again conflicts.
	resp, body = postJSON(t, ts.URL+"/wheel/claim", `{"accountId":"acct1","drawId":"`+drawID+`"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "ALREADY_CLAIMED", body["code"])

	// Another account cannot see the draw at all.
	resp, body = postJSON(t, ts.URL+"/wheel/claim", `{"accountId":"acct2","drawId":"`+drawID+`"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NOT_FOUND", body["code"])

	resp, body = getJSON(t, ts.URL+"/wallet/balance?accountId=acct1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 100, body["gold"])

	resp, body = getJSON(t, ts.URL+"/wheel/history?accountId=acct1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["total"])
}

func TestSpinUnknownWheel(t *testing.T) {
	_, ts := testServer(t)
	resp, body := postJSON(t, ts.URL+"/wheel/nope/spin", `{"accountId":"acct1"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "WHEEL_NOT_FOUND", body["code"])
}

func TestSpinRejectsBadBody(t *testing.T) {
	_, ts := testServer(t)
	resp, body := postJSON(t, ts.URL+"/wheel/daily_wheel/spin", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_REQUEST", body["code"])
}

func TestRateLimitSpins(t *testing.T) {
	s, ts := testServer(t)
	s.limiter = newIPLimiter(1) // burst of 1

	resp, _ := postJSON(t, ts.URL+"/wheel/daily_wheel/spin", `{"accountId":"acct1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := postJSON(t, ts.URL+"/wheel/daily_wheel/spin", `{"accountId":"acct1"}`)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "RATE_LIMITED", body["code"])
}

func TestEligibilityEndpoints(t *testing.T) {
	_, ts := testServer(t)

	resp, body := postJSON(t, ts.URL+"/eligibility/grant", `{"accountId":"acct1","type":"threshold","thresholdId":"spend_50","spendThreshold":50,"count":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["granted"])

	resp, body = getJSON(t, ts.URL+"/eligibility?accountId=acct1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 3, body["totalSpinsAvailable"])

	resp, body = postJSON(t, ts.URL+"/eligibility/grant", `{"accountId":"acct1","type":"random","probability":1,"cooldownHours":24}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["granted"])

	resp, body = postJSON(t, ts.URL+"/eligibility/grant", `{"accountId":"acct1","type":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_REQUEST", body["code"])
}

func TestAdminValidateAndStats(t *testing.T) {
	_, ts := testServer(t)

	resp, body := getJSON(t, ts.URL+"/admin/wheel/daily_wheel/validate")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["valid"])
	require.EqualValues(t, 100, body["totalWeight"])

	resp, body = getJSON(t, ts.URL+"/admin/wheel/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, body["totalDraws"])
}

func TestAdminCatalogImport(t *testing.T) {
	s, ts := testServer(t)

	payload := `{
		"wheel_id": "vip_wheel",
		"rewards": [
			{"id": 1, "amount": 500, "currency_type": "GOLD", "rarity": "RARE", "probability": 100, "description": "500 Gold Coins"}
		]
	}`
	resp, body := postJSON(t, ts.URL+"/admin/wheel/vip_wheel/catalog", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["rewards"])
	require.NotNil(t, s.catalogs.Get("vip_wheel"))

	resp, body = postJSON(t, ts.URL+"/admin/wheel/vip_wheel/catalog", `{"rewards":[]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_WHEEL_FILE", body["code"])
}
