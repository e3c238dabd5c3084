package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/model"
	pkgerrors "timeclock/backend/pkg/errors"
)

// ── 测试辅助 ──

func setupTestUserService() (UserService, *testFixture) {
	f := newFixture(time.Now())
	f.addUser("admin", model.RoleAdmin)
	return NewUserService(f.repo, f.audit(), f.logger), f
}

func strp(s string) *string { return &s }

// ── Create ──

func TestUserService_Create(t *testing.T) {
	svc, f := setupTestUserService()

	resp, err := svc.Create(context.Background(), &dto.CreateUserRequest{
		Name:     "张三",
		Email:    " ZhangSan@Example.com ",
		Password: "password123",
	}, "admin", testMeta)
	if err != nil {
		t.Fatalf("Create 应成功: %v", err)
	}
	if resp.Email != "zhangsan@example.com" {
		t.Errorf("邮箱应规范化，实际=%s", resp.Email)
	}
	if resp.Role != model.RoleEmployee || resp.Status != model.UserStatusActive {
		t.Errorf("期望默认 employee/active，实际=%s/%s", resp.Role, resp.Status)
	}

	stored := f.users.users[resp.ID]
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("password123")) != nil {
		t.Error("密码应以 bcrypt 存储")
	}

	_, err = svc.Create(context.Background(), &dto.CreateUserRequest{
		Name:     "李四",
		Email:    "zhangsan@example.com",
		Password: "password123",
	}, "admin", testMeta)
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("期望 ErrEmailExists，实际: %v", err)
	}
}

// ── Update ──

func TestUserService_Update(t *testing.T) {
	svc, f := setupTestUserService()
	f.addUser("u1", model.RoleEmployee)
	f.addUser("u2", model.RoleEmployee)

	resp, err := svc.Update(context.Background(), "u1", &dto.UpdateUserRequest{
		Name:    strp("新名字"),
		Role:    strp(model.RoleIntern),
		Version: 1,
	}, "admin", testMeta)
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if resp.Name != "新名字" || resp.Role != model.RoleIntern || resp.Version != 2 {
		t.Errorf("更新结果错误: %+v", resp)
	}

	_, err = svc.Update(context.Background(), "u1", &dto.UpdateUserRequest{Name: strp("再改"), Version: 1}, "admin", testMeta)
	if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("旧版本期望 ErrOptimisticLock，实际: %v", err)
	}

	_, err = svc.Update(context.Background(), "u1", &dto.UpdateUserRequest{Email: strp("u2@example.com"), Version: 2}, "admin", testMeta)
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("期望 ErrEmailExists，实际: %v", err)
	}

	_, err = svc.Update(context.Background(), "u1", &dto.UpdateUserRequest{Name: strp("新名字"), Version: 2}, "admin", testMeta)
	if !errors.Is(err, ErrNoChanges) {
		t.Errorf("期望 ErrNoChanges，实际: %v", err)
	}

	_, err = svc.Update(context.Background(), "admin", &dto.UpdateUserRequest{Role: strp(model.RoleEmployee), Version: 1}, "admin", testMeta)
	if !errors.Is(err, ErrUserSelfRoleChange) {
		t.Errorf("期望 ErrUserSelfRoleChange，实际: %v", err)
	}
}

func TestApplyUserUpdate_DoesNotMutateInput(t *testing.T) {
	current := model.User{UserID: "u1", Name: "旧名字", Email: "a@example.com", Role: model.RoleEmployee}
	next, changed := applyUserUpdate(current, &dto.UpdateUserRequest{Email: strp("B@Example.com")})

	if !changed || next.Email != "b@example.com" {
		t.Errorf("期望邮箱更新为 b@example.com，实际=%s", next.Email)
	}
	if current.Email != "a@example.com" {
		t.Error("入参不应被修改")
	}
}

// ── SetStatus ──

func TestUserService_SetStatus(t *testing.T) {
	svc, f := setupTestUserService()
	f.addUser("u1", model.RoleEmployee)

	resp, err := svc.SetStatus(context.Background(), "u1", &dto.UpdateUserStatusRequest{Status: model.UserStatusInactive}, "admin", testMeta)
	if err != nil || resp.Status != model.UserStatusInactive {
		t.Fatalf("SetStatus 应成功: %+v err=%v", resp, err)
	}
	if got := f.audits.actions(); got[len(got)-1] != model.AuditActionStatusChange {
		t.Errorf("期望审计 status_change，实际=%v", got)
	}

	_, err = svc.SetStatus(context.Background(), "admin", &dto.UpdateUserStatusRequest{Status: model.UserStatusInactive}, "admin", testMeta)
	if !errors.Is(err, ErrUserSelfStatusChange) {
		t.Errorf("期望 ErrUserSelfStatusChange，实际: %v", err)
	}

	_, err = svc.SetStatus(context.Background(), "ghost", &dto.UpdateUserStatusRequest{Status: model.UserStatusActive}, "admin", testMeta)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

// ── ChangePassword ──

func TestUserService_ChangePassword(t *testing.T) {
	svc, f := setupTestUserService()
	u := f.addUser("u1", model.RoleEmployee)
	hash, _ := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.MinCost)
	u.PasswordHash = string(hash)

	err := svc.ChangePassword(context.Background(), "u1", &dto.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "newpassword1",
	}, testMeta)
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("期望 ErrWrongPassword，实际: %v", err)
	}

	err = svc.ChangePassword(context.Background(), "u1", &dto.ChangePasswordRequest{
		OldPassword: "oldpassword",
		NewPassword: "newpassword1",
	}, testMeta)
	if err != nil {
		t.Fatalf("ChangePassword 应成功: %v", err)
	}
	stored := f.users.users["u1"]
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpassword1")) != nil {
		t.Error("新密码未生效")
	}
}

// ── List ──

func TestUserService_List(t *testing.T) {
	svc, f := setupTestUserService()
	f.addUser("u1", model.RoleEmployee)
	f.addUser("u2", model.RoleIntern)

	list, total, err := svc.List(context.Background(), &dto.UserListRequest{Role: model.RoleIntern})
	if err != nil || total != 1 || list[0].ID != "u2" {
		t.Errorf("按角色筛选错误: total=%d err=%v", total, err)
	}
}

// ── Import ──

func buildImportFile(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cellName, &row); err != nil {
			t.Fatalf("写入测试 Excel 失败: %v", err)
		}
	}
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		t.Fatalf("生成测试 Excel 失败: %v", err)
	}
	return buf
}

func TestUserService_ParseImportFile(t *testing.T) {
	svc, _ := setupTestUserService()

	buf := buildImportFile(t, [][]interface{}{
		{"邮箱", "姓名", "角色"},
		{"a@example.com", "甲", "intern"},
		{"", "", ""},
		{"b@example.com", "乙", ""},
	})
	rows, err := svc.ParseImportFile(buf)
	if err != nil {
		t.Fatalf("ParseImportFile 应成功: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("期望 2 行（跳过空行），实际=%d", len(rows))
	}
	if rows[0].Email != "a@example.com" || rows[0].Name != "甲" || rows[0].Role != "intern" || rows[0].Row != 2 {
		t.Errorf("第一行解析错误: %+v", rows[0])
	}
	if rows[1].Row != 4 {
		t.Errorf("行号应对应 Excel 行，实际=%d", rows[1].Row)
	}

	bad := buildImportFile(t, [][]interface{}{{"姓名", "部门"}, {"甲", "x"}})
	if _, err := svc.ParseImportFile(bad); !errors.Is(err, ErrImportBadHeader) {
		t.Errorf("期望 ErrImportBadHeader，实际: %v", err)
	}
}

func TestUserService_ImportUsers(t *testing.T) {
	svc, f := setupTestUserService()
	f.addUser("u1", model.RoleEmployee)

	resp, err := svc.ImportUsers(context.Background(), []ImportUserRow{
		{Row: 2, Name: "甲", Email: "a@example.com"},
		{Row: 3, Name: "乙", Email: "u1@example.com"},
		{Row: 4, Name: "丙", Email: "not-an-email"},
		{Row: 5, Name: "丁", Email: "A@example.com"},
		{Row: 6, Name: "戊", Email: "e@example.com", Role: "boss"},
		{Row: 7, Name: "", Email: "f@example.com"},
	}, "admin")
	if err != nil {
		t.Fatalf("ImportUsers 应成功: %v", err)
	}
	if resp.Total != 6 || resp.Success != 1 || resp.Failed != 5 {
		t.Errorf("期望 6/1/5，实际=%d/%d/%d", resp.Total, resp.Success, resp.Failed)
	}
	if len(resp.Created) != 1 || len(resp.Created[0].TempPassword) < 8 {
		t.Errorf("成功行应返回临时密码: %+v", resp.Created)
	}

	created, err := f.users.GetByEmail(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("导入的用户应已写入: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte(resp.Created[0].TempPassword)) != nil {
		t.Error("临时密码应与存储的哈希一致")
	}
}

func TestGenerateTempPassword(t *testing.T) {
	for i := 0; i < 50; i++ {
		pwd, err := generateTempPassword(10)
		if err != nil {
			t.Fatalf("生成失败: %v", err)
		}
		if len(pwd) != 10 {
			t.Fatalf("期望长度 10，实际=%d", len(pwd))
		}
		hasLetter, hasDigit := false, false
		for _, c := range pwd {
			switch {
			case c >= '0' && c <= '9':
				hasDigit = true
			default:
				hasLetter = true
			}
		}
		if !hasLetter || !hasDigit {
			t.Errorf("密码应同时包含字母与数字: %s", pwd)
		}
	}
}
