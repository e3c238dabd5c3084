package handler

import (
	"timeclock/backend/config"
	"timeclock/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth      *AuthHandler
	User      *UserHandler
	TimeEntry *TimeEntryHandler
	Incident  *IncidentHandler
	Audit     *AuditHandler
	Export    *ExportHandler
	Health    *HealthHandler
}

// NewHandler 创建 Handler 聚合。sweeper 为 nil 时手动巡检接口返回 503，deps 用于就绪探针
func NewHandler(cfg *config.Config, svc *service.Service, sweeper SweepTrigger, deps ...NamedPinger) *Handler {
	return &Handler{
		Auth:      NewAuthHandler(svc.Auth, &cfg.Server),
		User:      NewUserHandler(svc.User),
		TimeEntry: NewTimeEntryHandler(svc.TimeEntry),
		Incident:  NewIncidentHandler(svc.Incident, sweeper),
		Audit:     NewAuditHandler(svc.Audit),
		Export:    NewExportHandler(svc.Export),
		Health:    NewHealthHandler(deps...),
	}
}
