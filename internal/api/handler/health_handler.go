package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger 可探活的外部依赖（数据库、Redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// NamedPinger 带名称的探活目标
type NamedPinger struct {
	Name string
	Pinger
}

// HealthHandler 健康检查
type HealthHandler struct {
	deps    []NamedPinger
	started time.Time
}

// NewHealthHandler 创建 HealthHandler。参数中的 nil 依赖会被忽略
func NewHealthHandler(deps ...NamedPinger) *HealthHandler {
	h := &HealthHandler{started: time.Now()}
	for _, d := range deps {
		if d.Pinger != nil {
			h.deps = append(h.deps, d)
		}
	}
	return h
}

// Live 存活探针
// GET /health
func (h *HealthHandler) Live(c *gin.Context) {
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"timestamp":  now.UTC().Format(time.RFC3339),
		"started_at": h.started.UTC().Format(time.RFC3339),
		"uptime_sec": int64(now.Sub(h.started).Seconds()),
	})
}

// Ready 就绪探针，任一依赖不可达时返回 503
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(gin.H, len(h.deps))
	healthy := true
	for _, d := range h.deps {
		if err := d.Ping(ctx); err != nil {
			checks[d.Name] = err.Error()
			healthy = false
			continue
		}
		checks[d.Name] = "ok"
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
