package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/model"
)

func TestAuditService_LogSnapshots(t *testing.T) {
	f := newFixture(time.Now())
	svc := f.audit()

	svc.Log(context.Background(), AuditEntry{
		ActorID:    "admin",
		Action:     model.AuditActionUpdate,
		EntityType: model.AuditEntityTimeEntry,
		EntityID:   "te-1",
		Old:        map[string]string{"status": "approved"},
		New:        map[string]string{"status": "modified"},
		Meta:       testMeta,
	})

	if len(f.audits.logs) != 1 {
		t.Fatalf("期望写入 1 条审计，实际=%d", len(f.audits.logs))
	}
	log := f.audits.logs[0]
	if log.UserID == nil || *log.UserID != "admin" {
		t.Error("应记录操作人")
	}
	var newValues map[string]string
	if log.NewValues == nil || json.Unmarshal([]byte(*log.NewValues), &newValues) != nil || newValues["status"] != "modified" {
		t.Errorf("新值快照错误: %v", log.NewValues)
	}
	if log.IPAddress == nil || *log.IPAddress != testMeta.IP {
		t.Error("应记录来源 IP")
	}
}

func TestAuditService_SystemActorAndEmptySnapshot(t *testing.T) {
	f := newFixture(time.Now())
	f.audit().Log(context.Background(), AuditEntry{
		Action:     model.AuditActionCreate,
		EntityType: model.AuditEntityIncident,
		EntityID:   "inc-1",
	})

	log := f.audits.logs[0]
	if log.UserID != nil {
		t.Error("系统操作不应有操作人")
	}
	if log.OldValues != nil || log.NewValues != nil {
		t.Error("无快照时不应写入空 JSON")
	}
}

func TestAuditService_LogFailureIsSwallowed(t *testing.T) {
	f := newFixture(time.Now())
	f.audits.err = errors.New("写入失败")

	// 不应 panic，也不返回错误
	f.audit().Log(context.Background(), AuditEntry{Action: model.AuditActionLogin, EntityType: model.AuditEntitySession})
	if len(f.audits.logs) != 0 {
		t.Error("写入失败时不应留下记录")
	}
}

func TestAuditService_ListByEntity(t *testing.T) {
	f := newFixture(time.Now())
	svc := f.audit()
	for _, id := range []string{"te-1", "te-2", "te-1"} {
		svc.Log(context.Background(), AuditEntry{
			ActorID:    "admin",
			Action:     model.AuditActionUpdate,
			EntityType: model.AuditEntityTimeEntry,
			EntityID:   id,
		})
	}

	list, total, err := svc.ListByEntity(context.Background(), model.AuditEntityTimeEntry, "te-1", &dto.PaginationRequest{})
	if err != nil {
		t.Fatalf("ListByEntity 应成功: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Errorf("期望 te-1 的 2 条记录，实际 total=%d", total)
	}
}
