package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/events"
	"github.com/betbot/fleet/internal/extraction"
	"github.com/betbot/fleet/internal/fleet"
	"github.com/betbot/fleet/internal/group"
	"github.com/betbot/fleet/internal/registry"
	"github.com/betbot/fleet/internal/scaling"
)

type sinkSource struct{}

func (sinkSource) Poll(ctx context.Context) ([]domain.TradeOutcome, error) { return nil, nil }

func newTestServer(t *testing.T) (*Server, *fleet.Controller, *events.Bus) {
	t.Helper()

	bus := events.NewBus(64)
	reg := registry.New(registry.Policy{ScalingMultiplier: 1.5, ExtractionMultiplier: 2.0, MaxAccounts: 10}, bus)
	planner := scaling.New(reg, bus, scaling.Config{})
	extractor := extraction.New(reg, bus, extraction.Config{})
	coordinator := group.New(reg, bus, 1.2)
	ctrl := fleet.New(reg, planner, extractor, coordinator, bus, sinkSource{}, fleet.Config{
		PerformanceInterval: time.Hour,
		ScalingInterval:     time.Hour,
		ExtractionInterval:  time.Hour,
	})

	srv, err := New(Config{DBPath: filepath.Join(t.TempDir(), "audit.db")}, ctrl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, ctrl, bus
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// TestHealthz 健康检查
func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestAccountLifecycleAPI 账户创建、查询、状态变更
func TestAccountLifecycleAPI(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/", map[string]any{
		"name": "alpha", "exchange_id": "sim", "initial_balance": 200.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var acct domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acct))
	assert.Equal(t, domain.TierMini, acct.Tier)
	assert.Equal(t, domain.StatusActive, acct.Status)

	rec = doJSON(t, router, http.MethodGet, "/api/accounts/"+acct.ID+"/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/accounts/"+acct.ID+"/status", map[string]any{"status": "suspended"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, domain.StatusSuspended, updated.Status)

	// 非法迁移
	rec = doJSON(t, router, http.MethodPost, "/api/accounts/"+acct.ID+"/status", map[string]any{"status": "liquidated"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 未知账户
	rec = doJSON(t, router, http.MethodGet, "/api/accounts/ghost/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestAccountCreateInvalidAPI 非法创建参数
func TestAccountCreateInvalidAPI(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/accounts/", map[string]any{
		"name": "bad", "initial_balance": -5.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestOutcomeReportAPI 外部上报交易结果
func TestOutcomeReportAPI(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	router := srv.Router()

	acct, err := ctrl.Registry().CreateAccount("trader", "sim", 100, nil)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/outcomes", map[string]any{
		"account_id": acct.ID, "pnl": 25.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 125.0, updated.Balance)
}

// TestGroupOpportunityAPI 分组创建与协同交易
func TestGroupOpportunityAPI(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	router := srv.Router()

	a, _ := ctrl.Registry().CreateAccount("a", "sim", 100, nil)
	b, _ := ctrl.Registry().CreateAccount("b", "sim", 300, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/groups/", map[string]any{
		"name": "pair", "strategy": "arbitrage", "account_ids": []string{a.ID, b.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var g domain.AccountGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))

	rec = doJSON(t, router, http.MethodPost, "/api/groups/"+g.ID+"/opportunity", map[string]any{
		"total_size": 40.0, "expected_return": 0.10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result domain.GroupTradeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Allocations, 2)
	assert.InDelta(t, 10.0, result.Allocations[0].Size, 1e-9)
	assert.InDelta(t, 30.0, result.Allocations[1].Size, 1e-9)
	assert.False(t, result.Partial)
}

// TestGroupOpportunitySkipped 活跃成员不足时协同交易按 no-op 跳过，不是错误
func TestGroupOpportunitySkipped(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	router := srv.Router()

	a, _ := ctrl.Registry().CreateAccount("a", "sim", 100, nil)
	b, _ := ctrl.Registry().CreateAccount("b", "sim", 300, nil)
	g, err := ctrl.Coordinator().CreateGroup("pair", "arbitrage", []string{a.ID, b.ID})
	require.NoError(t, err)

	// 只剩 1 个活跃成员
	require.NoError(t, ctrl.Registry().SetStatus(b.ID, domain.StatusSuspended))

	rec := doJSON(t, router, http.MethodPost, "/api/groups/"+g.ID+"/opportunity", map[string]any{
		"total_size": 40.0, "expected_return": 0.10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["skipped"])

	// 跳过的交易不改动任何成员余额
	acct, err := ctrl.Registry().Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, acct.Balance)
}

// TestFleetStatsAndEmergencyStopAPI 船队统计与紧急停机
func TestFleetStatsAndEmergencyStopAPI(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	router := srv.Router()

	_, _ = ctrl.Registry().CreateAccount("a", "sim", 100, nil)
	_, _ = ctrl.Registry().CreateAccount("b", "sim", 1000, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/fleet/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats registry.FleetStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalAccounts)
	assert.Equal(t, 1100.0, stats.TotalBalance)

	rec = doJSON(t, router, http.MethodPost, "/api/fleet/emergency_stop", map[string]any{"reason": "drill"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2.0, resp["suspended"])
}

// TestAuditPipeline 总线事件落入审计库并可查询
func TestAuditPipeline(t *testing.T) {
	srv, ctrl, bus := newTestServer(t)
	srv.SubscribeAudit(bus)

	ctx, cancel := context.WithCancel(context.Background())
	bus.Start(ctx)

	acct, err := ctrl.Registry().CreateAccount("audited", "sim", 100, nil)
	require.NoError(t, err)
	_, err = ctrl.Registry().ApplyOutcome(acct.ID, 100)
	require.NoError(t, err)
	report := ctrl.Extractor().RunCheck(context.Background())
	require.Equal(t, 1, report.Extractions)

	cancel()
	bus.Wait()

	events, err := srv.listAuditEvents(context.Background(), "profitExtracted", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	rows, err := srv.listExtractionRows(context.Background(), acct.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 100.0, rows[0].Amount)
	assert.Equal(t, acct.ID, rows[0].AccountID)
}
