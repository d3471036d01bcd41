package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/betbot/fleet/internal/domain"
	"github.com/betbot/fleet/internal/group"
	"github.com/betbot/fleet/internal/registry"
)

// statusCode 把领域错误映射为 HTTP 状态码
func statusCode(err error) int {
	switch {
	case errors.Is(err, registry.ErrAccountNotFound), errors.Is(err, group.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidConfiguration),
		errors.Is(err, registry.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrAccountCapReached):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ---- accounts ----

type createAccountRequest struct {
	Name           string   `json:"name"`
	ExchangeID     string   `json:"exchange_id"`
	InitialBalance float64  `json:"initial_balance"`
	Strategies     []string `json:"strategies"`
}

func (s *Server) handleAccountsCreate(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	acct, err := s.ctrl.Registry().CreateAccount(req.Name, req.ExchangeID, req.InitialBalance, req.Strategies)
	if err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	writeJSON(w, 201, acct)
}

func (s *Server) handleAccountsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.ctrl.Registry().List())
}

func (s *Server) handleAccountGet(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ctrl.Registry().Get(pathParam(r, "accountID"))
	if err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	writeJSON(w, 200, acct)
}

func (s *Server) handleAccountPlan(w http.ResponseWriter, r *http.Request) {
	accountID := pathParam(r, "accountID")
	if _, err := s.ctrl.Registry().Get(accountID); err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	plan := s.ctrl.Planner().Plan(accountID)
	if plan == nil {
		writeError(w, 404, "no scaling plan for account")
		return
	}
	writeJSON(w, 200, plan)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleAccountSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}

	next := domain.AccountStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch next {
	case domain.StatusActive, domain.StatusSuspended, domain.StatusLiquidated:
	default:
		// Scaling/Extracting 是内部过渡态，Error 只能由入账失败进入
		writeError(w, 400, "status must be one of: active, suspended, liquidated")
		return
	}

	accountID := pathParam(r, "accountID")
	if err := s.ctrl.Registry().SetStatus(accountID, next); err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	acct, err := s.ctrl.Registry().Get(accountID)
	if err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	writeJSON(w, 200, acct)
}

// ---- outcomes ----

func (s *Server) handleOutcomeReport(w http.ResponseWriter, r *http.Request) {
	var oc domain.TradeOutcome
	if err := json.NewDecoder(r.Body).Decode(&oc); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	if oc.AccountID == "" {
		writeError(w, 400, "account_id is required")
		return
	}
	if oc.Timestamp.IsZero() {
		oc.Timestamp = time.Now()
	}

	acct, err := s.ctrl.ReportOutcome(oc)
	if err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	writeJSON(w, 200, acct)
}

// ---- groups ----

type createGroupRequest struct {
	Name       string   `json:"name"`
	Strategy   string   `json:"strategy"`
	AccountIDs []string `json:"account_ids"`
}

func (s *Server) handleGroupsCreate(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}

	g, err := s.ctrl.Coordinator().CreateGroup(req.Name, req.Strategy, req.AccountIDs)
	if err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	writeJSON(w, 201, g)
}

func (s *Server) handleGroupsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.ctrl.Coordinator().List())
}

func (s *Server) handleGroupGet(w http.ResponseWriter, r *http.Request) {
	g, err := s.ctrl.Coordinator().Get(pathParam(r, "groupID"))
	if err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	writeJSON(w, 200, g)
}

type addGroupAccountRequest struct {
	AccountID string `json:"account_id"`
}

func (s *Server) handleGroupAddAccount(w http.ResponseWriter, r *http.Request) {
	var req addGroupAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	groupID := pathParam(r, "groupID")
	if err := s.ctrl.Coordinator().AddAccount(groupID, req.AccountID); err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	g, err := s.ctrl.Coordinator().Get(groupID)
	if err != nil {
		writeError(w, statusCode(err), err.Error())
		return
	}
	writeJSON(w, 200, g)
}

func (s *Server) handleGroupOpportunity(w http.ResponseWriter, r *http.Request) {
	var opp domain.GroupOpportunity
	if err := json.NewDecoder(r.Body).Decode(&opp); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	opp.GroupID = pathParam(r, "groupID")
	if opp.TotalSize <= 0 {
		writeError(w, 400, "total_size must be positive")
		return
	}

	result, err := s.ctrl.SubmitGroupOpportunity(r.Context(), opp)
	if err != nil {
		// 活跃成员不足是跳过而不是错误：记录日志，按 no-op 返回
		if errors.Is(err, group.ErrInsufficientGroupCapacity) {
			log.Infof("协同交易跳过: group=%s err=%v", opp.GroupID, err)
			writeJSON(w, 200, map[string]any{"skipped": true, "reason": err.Error()})
			return
		}
		writeError(w, statusCode(err), err.Error())
		return
	}
	writeJSON(w, 200, result)
}

// ---- extractions / fleet ----

func (s *Server) handleExtractionsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.ctrl.Extractor().Ledger())
}

func (s *Server) handleFleetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.GetOrLoad("fleet", func() registry.FleetStats {
		return s.ctrl.Registry().Stats()
	})
	writeJSON(w, 200, stats)
}

type emergencyStopRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req emergencyStopRequest
	// body 可选
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}

	suspended := s.ctrl.EmergencyStop(req.Reason)
	writeJSON(w, 200, map[string]any{"suspended": suspended, "reason": req.Reason})
}

// ---- audit ----

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.listAuditEvents(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, rows)
}

func (s *Server) handleAuditExtractions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.listExtractionRows(r.Context(), r.URL.Query().Get("account_id"), limit)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, rows)
}
