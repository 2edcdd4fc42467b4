package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"evo-trading-bot/config"
	"evo-trading-bot/internal/auth"
	"evo-trading-bot/internal/backtest"
	"evo-trading-bot/internal/events"
	"evo-trading-bot/internal/genetic"
	"evo-trading-bot/internal/logging"
	"evo-trading-bot/internal/market"
	"evo-trading-bot/internal/orchestrator"
	"evo-trading-bot/internal/rotation"
	"evo-trading-bot/internal/strategy"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr"})
}

type stubFetcher struct {
	bars []market.Bar
}

func (f *stubFetcher) Fetch(context.Context, market.FetchRequest) ([]market.Bar, error) {
	return f.bars, nil
}

func marketBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		close := 100 + float64(i)*0.5
		if i%5 == 0 {
			close -= 2
		}
		bars[i] = market.Bar{
			OpenTime: t0.Add(time.Duration(i) * 24 * time.Hour),
			Open:     close, High: close + 1, Low: close - 1, Close: close,
			Volume: 500,
		}
	}
	return bars
}

func newTestServer(t *testing.T, authCfg config.AuthConfig) *Server {
	t.Helper()
	logger := testLogger()
	fetcher := &stubFetcher{bars: marketBars(120)}
	registry := backtest.NewRegistry(fetcher, backtest.NewBootstrapSimulator(10), logger)
	rotator := rotation.NewRotator(logger)
	bus := events.NewBus()

	gaCfg := genetic.DefaultConfig()
	gaCfg.PopulationSize = 4
	gaCfg.Generations = 1
	gaCfg.EliteCount = 1
	gaCfg.Seed = 5

	orch := orchestrator.New(registry, rotator, bus, nil, orchestrator.Config{
		Template: backtest.Request{InitialCapital: 10000},
		GAConfig: gaCfg,
	}, logger)

	return NewServer(config.ServerConfig{Port: 0, AllowedOrigins: "*"}, authCfg, Deps{
		Orchestrator: orch,
		Rotator:      rotator,
		Fetcher:      fetcher,
		Bus:          bus,
	}, logger)
}

func doJSON(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	w := doJSON(t, s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
}

func TestAuthTokenFlow(t *testing.T) {
	hash, err := auth.HashAPIKey("valid-key")
	if err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t, config.AuthConfig{
		Enabled:             true,
		JWTSecret:           "test-secret",
		APIKeyHash:          hash,
		AccessTokenDuration: time.Hour,
	})

	// Protected route without a token
	if w := doJSON(t, s, http.MethodGet, "/api/v1/strategies", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", w.Code)
	}

	// Wrong key
	if w := doJSON(t, s, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"api_key": "bad"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad key status = %d, want 401", w.Code)
	}

	// Right key
	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"api_key": "valid-key"})
	if w.Code != http.StatusOK {
		t.Fatalf("token status = %d, want 200", w.Code)
	}
	var tokenResp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &tokenResp); err != nil {
		t.Fatal(err)
	}
	token, _ := tokenResp["access_token"].(string)
	if token == "" {
		t.Fatal("no access token issued")
	}

	if w := doJSON(t, s, http.MethodGet, "/api/v1/strategies", token, nil); w.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", w.Code)
	}
}

func TestStrategiesEndpoints(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	w := doJSON(t, s, http.MethodGet, "/api/v1/strategies", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Registered []string `json:"registered"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Registered) == 0 {
		t.Error("expected registered strategy types")
	}

	// Nothing active yet
	if w := doJSON(t, s, http.MethodGet, "/api/v1/strategies/active", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("active status = %d, want 404", w.Code)
	}

	// Unknown activation target
	if w := doJSON(t, s, http.MethodPost, "/api/v1/strategies/active", "", map[string]string{"strategy_id": "nope"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown strategy status = %d, want 404", w.Code)
	}

	// Register one and activate it
	strat, err := strategy.New("sma_crossover", "s1", map[string]interface{}{"fast_period": 3, "slow_period": 10})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.rotator.AddStrategy("s1", strat, 50, true); err != nil {
		t.Fatal(err)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/v1/strategies/active", "", nil); w.Code != http.StatusOK {
		t.Errorf("active status = %d, want 200", w.Code)
	}
}

func TestEvolutionEndpoints(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	req := map[string]interface{}{
		"strategy_type": "sma_crossover",
		"symbol":        "AAPL",
		"asset_class":   "equity",
		"start_date":    "2024-01-01T00:00:00Z",
		"end_date":      "2024-06-01T00:00:00Z",
		"interval":      "1d",
		"schema": map[string]interface{}{
			"fast_period": map[string]interface{}{"type": "int", "min": 2, "max": 8},
			"slow_period": map[string]interface{}{"type": "int", "min": 10, "max": 30},
		},
	}

	w := doJSON(t, s, http.MethodPost, "/api/v1/evolution/runs", "", req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d (%s), want 202", w.Code, w.Body.String())
	}
	var run struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.ID == "" {
		t.Fatal("no run id returned")
	}

	if w := doJSON(t, s, http.MethodGet, "/api/v1/evolution/runs/"+run.ID, "", nil); w.Code != http.StatusOK {
		t.Errorf("get run status = %d, want 200", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/v1/evolution/runs/does-not-exist", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", w.Code)
	}

	// Invalid request rejected up front
	bad := map[string]interface{}{"strategy_type": "nope", "symbol": "AAPL", "asset_class": "equity",
		"schema": map[string]interface{}{"p": map[string]interface{}{"type": "int", "min": 1, "max": 2}}}
	if w := doJSON(t, s, http.MethodPost, "/api/v1/evolution/runs", "", bad); w.Code != http.StatusBadRequest {
		t.Errorf("invalid start status = %d, want 400", w.Code)
	}
}

func TestBacktestEndpointsWithoutDatabase(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})
	if w := doJSON(t, s, http.MethodGet, "/api/v1/backtests/some-id", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 with persistence off", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/v1/evolution/archive/some-id", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("archive status = %d, want 503 with persistence off", w.Code)
	}
}

func TestAutoRotateEndpoint(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	for _, id := range []string{"a", "b"} {
		strat, err := strategy.New("market_sentiment", id, map[string]interface{}{"lookback": 10, "threshold": 0.1})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.rotator.AddStrategy(id, strat, 50, true); err != nil {
			t.Fatal(err)
		}
	}

	w := doJSON(t, s, http.MethodPost, "/api/v1/strategies/rotate", "", map[string]interface{}{
		"symbol": "AAPL", "asset_class": "equity",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s), want 200", w.Code, w.Body.String())
	}
	var decision struct {
		Scores map[string]float64 `json:"scores"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatal(err)
	}
	if len(decision.Scores) != 2 {
		t.Errorf("scores = %v, want entries for both strategies", decision.Scores)
	}
}
