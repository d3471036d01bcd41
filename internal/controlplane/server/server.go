package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/betbot/fleet/internal/events"
	"github.com/betbot/fleet/internal/fleet"
	"github.com/betbot/fleet/internal/registry"
	"github.com/betbot/fleet/pkg/cache"
)

type Config struct {
	DBPath string

	// StatsTTL 船队统计的缓存时长；0 表示默认 2 秒
	StatsTTL time.Duration
}

// Server 船队控制面
// 对外提供 HTTP API，内部把船队事件落入 sqlite 审计库。
// 船队统计是全船队扫描，用短 TTL 缓存挡住高频轮询。
type Server struct {
	cfg   Config
	db    *sql.DB
	ctrl  *fleet.Controller
	stats *cache.InMemoryCache[string, registry.FleetStats]
}

func New(cfg Config, ctrl *fleet.Controller) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	if ctrl == nil {
		return nil, errors.New("fleet controller is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = 2 * time.Second
	}

	s := &Server{
		cfg:   cfg,
		db:    db,
		ctrl:  ctrl,
		stats: cache.NewInMemoryCache[string, registry.FleetStats](cfg.StatsTTL),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SubscribeAudit 把总线事件写入审计库
func (s *Server) SubscribeAudit(bus *events.Bus) {
	bus.Subscribe(func(e events.Event) {
		if err := s.insertEvent(context.Background(), e); err != nil {
			log.Warnf("审计事件落库失败: event=%s err=%v", e.EventName(), err)
		}
	})
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")

	accounts := api.Group("/accounts")
	accounts.GET("/", s.wrap(s.handleAccountsList))
	accounts.POST("/", s.wrap(s.handleAccountsCreate))
	accountsID := accounts.Group("/:accountID")
	accountsID.GET("/", s.wrap(s.handleAccountGet))
	accountsID.GET("/plan", s.wrap(s.handleAccountPlan))
	accountsID.POST("/status", s.wrap(s.handleAccountSetStatus))

	api.POST("/outcomes", s.wrap(s.handleOutcomeReport))

	groups := api.Group("/groups")
	groups.GET("/", s.wrap(s.handleGroupsList))
	groups.POST("/", s.wrap(s.handleGroupsCreate))
	groupID := groups.Group("/:groupID")
	groupID.GET("/", s.wrap(s.handleGroupGet))
	groupID.POST("/accounts", s.wrap(s.handleGroupAddAccount))
	groupID.POST("/opportunity", s.wrap(s.handleGroupOpportunity))

	api.GET("/extractions", s.wrap(s.handleExtractionsList))

	fleetAPI := api.Group("/fleet")
	fleetAPI.GET("/stats", s.wrap(s.handleFleetStats))
	fleetAPI.POST("/emergency_stop", s.wrap(s.handleEmergencyStop))

	audit := api.Group("/audit")
	audit.GET("/events", s.wrap(s.handleAuditEvents))
	audit.GET("/extractions", s.wrap(s.handleAuditExtractions))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "fleet_path_params"

// wrap adapts existing net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}
