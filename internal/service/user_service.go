package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/mail"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/model"
	"timeclock/backend/internal/repository"
	pkgerrors "timeclock/backend/pkg/errors"
)

// ── 用户模块业务错误 ──

var (
	ErrEmailExists          = errors.New("邮箱已被使用")
	ErrUserSelfStatusChange = errors.New("不能修改自己的账号状态")
	ErrUserSelfRoleChange   = errors.New("不能修改自己的角色")
	ErrWrongPassword        = errors.New("原密码错误")
)

// UserService 用户业务接口
type UserService interface {
	Create(ctx context.Context, req *dto.CreateUserRequest, adminID string, meta dto.RequestMeta) (*dto.UserResponse, error)
	GetByID(ctx context.Context, id string) (*dto.UserResponse, error)
	List(ctx context.Context, req *dto.UserListRequest) ([]dto.UserResponse, int64, error)
	Update(ctx context.Context, id string, req *dto.UpdateUserRequest, adminID string, meta dto.RequestMeta) (*dto.UserResponse, error)
	SetStatus(ctx context.Context, id string, req *dto.UpdateUserStatusRequest, adminID string, meta dto.RequestMeta) (*dto.UserResponse, error)
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest, meta dto.RequestMeta) error
	ParseImportFile(reader io.Reader) ([]ImportUserRow, error)
	ImportUsers(ctx context.Context, rows []ImportUserRow, adminID string) (*dto.ImportUserResponse, error)
}

// ImportUserRow Excel 导入解析后的单行数据
type ImportUserRow struct {
	Row   int
	Name  string
	Email string
	Role  string
}

type userService struct {
	repo   *repository.Repository
	audit  AuditService
	logger *zap.Logger
}

// NewUserService 创建 UserService 实例
func NewUserService(repo *repository.Repository, audit AuditService, logger *zap.Logger) UserService {
	return &userService{repo: repo, audit: audit, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *userService) Create(ctx context.Context, req *dto.CreateUserRequest, adminID string, meta dto.RequestMeta) (*dto.UserResponse, error) {
	email := normalizeEmail(req.Email)
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = model.RoleEmployee
	}

	user := &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       model.UserStatusActive,
	}
	// 命令行初始化管理员时没有操作人
	if adminID != "" {
		user.CreatedBy = &adminID
	}

	if err := s.repo.User.Create(ctx, user); err != nil {
		s.logger.Error("创建用户失败", zap.Error(err))
		return nil, err
	}

	resp := toUserResponse(user)
	s.audit.Log(ctx, AuditEntry{
		ActorID:    adminID,
		Action:     model.AuditActionCreate,
		EntityType: model.AuditEntityUser,
		EntityID:   user.UserID,
		New:        resp,
		Meta:       meta,
	})
	return resp, nil
}

// ────────────────────── GetByID / List ──────────────────────

func (s *userService) GetByID(ctx context.Context, id string) (*dto.UserResponse, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

func (s *userService) List(ctx context.Context, req *dto.UserListRequest) ([]dto.UserResponse, int64, error) {
	users, total, err := s.repo.User.List(ctx, repository.UserFilter{
		Role:    req.Role,
		Status:  req.Status,
		Keyword: strings.TrimSpace(req.Keyword),
	}, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出用户失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		result = append(result, *toUserResponse(&users[i]))
	}
	return result, total, nil
}

// ────────────────────── Update ──────────────────────

// applyUserUpdate 基于当前用户生成更新后的新值，不修改入参
func applyUserUpdate(current model.User, req *dto.UpdateUserRequest) (model.User, bool) {
	next := current
	changed := false

	if req.Name != nil && strings.TrimSpace(*req.Name) != current.Name {
		next.Name = strings.TrimSpace(*req.Name)
		changed = true
	}
	if req.Email != nil && normalizeEmail(*req.Email) != current.Email {
		next.Email = normalizeEmail(*req.Email)
		changed = true
	}
	if req.Role != nil && *req.Role != current.Role {
		next.Role = *req.Role
		changed = true
	}
	return next, changed
}

func (s *userService) Update(ctx context.Context, id string, req *dto.UpdateUserRequest, adminID string, meta dto.RequestMeta) (*dto.UserResponse, error) {
	current, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != current.Version {
		return nil, pkgerrors.ErrOptimisticLock
	}
	if id == adminID && req.Role != nil && *req.Role != current.Role {
		return nil, ErrUserSelfRoleChange
	}

	next, changed := applyUserUpdate(*current, req)
	if !changed {
		return nil, ErrNoChanges
	}
	if next.Email != current.Email {
		if err := s.ensureEmailFree(ctx, next.Email, id); err != nil {
			return nil, err
		}
	}
	next.UpdatedBy = &adminID

	return s.save(ctx, current, &next, model.AuditActionUpdate, adminID, meta)
}

func (s *userService) SetStatus(ctx context.Context, id string, req *dto.UpdateUserStatusRequest, adminID string, meta dto.RequestMeta) (*dto.UserResponse, error) {
	if id == adminID {
		return nil, ErrUserSelfStatusChange
	}
	current, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == req.Status {
		return nil, ErrNoChanges
	}

	next := *current
	next.Status = req.Status
	next.UpdatedBy = &adminID

	return s.save(ctx, current, &next, model.AuditActionStatusChange, adminID, meta)
}

func (s *userService) save(ctx context.Context, current, next *model.User, action, actorID string, meta dto.RequestMeta) (*dto.UserResponse, error) {
	if err := s.repo.User.Update(ctx, next); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新用户失败", zap.String("id", current.UserID), zap.Error(err))
		}
		return nil, err
	}

	resp := toUserResponse(next)
	s.audit.Log(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     action,
		EntityType: model.AuditEntityUser,
		EntityID:   current.UserID,
		Old:        toUserResponse(current),
		New:        resp,
		Meta:       meta,
	})
	return resp, nil
}

// ────────────────────── ChangePassword ──────────────────────

func (s *userService) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest, meta dto.RequestMeta) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return err
	}

	next := *user
	next.PasswordHash = string(hash)
	next.UpdatedBy = &userID
	if err := s.repo.User.Update(ctx, &next); err != nil {
		s.logger.Error("修改密码失败", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.audit.Log(ctx, AuditEntry{
		ActorID:    userID,
		Action:     model.AuditActionPasswordChange,
		EntityType: model.AuditEntityUser,
		EntityID:   userID,
		Meta:       meta,
	})
	return nil
}

// ────────────────────── ParseImportFile ──────────────────────

const maxImportRows = 1000

var (
	ErrImportNoData      = errors.New("Excel文件无数据行（第一行为表头）")
	ErrImportTooManyRows = fmt.Errorf("数据行数超过上限 %d 行", maxImportRows)
	ErrImportBadHeader   = errors.New("Excel表头缺少必要列（姓名/邮箱）")
)

// ParseImportFile 解析导入 Excel 文件，返回解析后的行数据
func (s *userService) ParseImportFile(reader io.Reader) ([]ImportUserRow, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("无法解析Excel文件: %w", err)
	}
	defer f.Close()

	excelRows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(excelRows) < 2 {
		return nil, ErrImportNoData
	}

	// 表头支持中英文与任意列序
	colIndex := parseHeaderIndex(excelRows[0])
	if colIndex["name"] < 0 || colIndex["email"] < 0 {
		return nil, ErrImportBadHeader
	}

	cellAt := func(row []string, key string) string {
		idx := colIndex[key]
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var rows []ImportUserRow
	for i := 1; i < len(excelRows); i++ {
		item := ImportUserRow{
			Row:   i + 1,
			Name:  cellAt(excelRows[i], "name"),
			Email: cellAt(excelRows[i], "email"),
			Role:  strings.ToLower(cellAt(excelRows[i], "role")),
		}
		if item.Name == "" && item.Email == "" && item.Role == "" {
			continue
		}
		rows = append(rows, item)
	}

	if len(rows) == 0 {
		return nil, ErrImportNoData
	}
	if len(rows) > maxImportRows {
		return nil, ErrImportTooManyRows
	}
	return rows, nil
}

// parseHeaderIndex 解析 Excel 表头，返回列名 -> 列索引映射
func parseHeaderIndex(header []string) map[string]int {
	idx := map[string]int{"name": -1, "email": -1, "role": -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "姓名", "name":
			idx["name"] = i
		case "邮箱", "email":
			idx["email"] = i
		case "角色", "role":
			idx["role"] = i
		}
	}
	return idx
}

// ────────────────────── ImportUsers ──────────────────────

func (s *userService) ImportUsers(ctx context.Context, rows []ImportUserRow, adminID string) (*dto.ImportUserResponse, error) {
	resp := &dto.ImportUserResponse{Total: len(rows)}
	fail := func(row int, reason string) {
		resp.Failed++
		resp.Errors = append(resp.Errors, dto.ImportUserError{Row: row, Reason: reason})
	}

	// 第一阶段：数据预校验（不写库）
	type validatedRow struct {
		user     *model.User
		row      int
		password string
	}
	var valid []validatedRow
	seen := make(map[string]bool, len(rows))

	for _, row := range rows {
		email := normalizeEmail(row.Email)
		if row.Name == "" || email == "" {
			fail(row.Row, "必填字段为空")
			continue
		}
		if _, err := mail.ParseAddress(email); err != nil {
			fail(row.Row, fmt.Sprintf("邮箱格式错误: %s", row.Email))
			continue
		}
		role := row.Role
		if role == "" {
			role = model.RoleEmployee
		}
		if role != model.RoleAdmin && role != model.RoleEmployee && role != model.RoleIntern {
			fail(row.Row, fmt.Sprintf("未知角色: %s", row.Role))
			continue
		}
		if seen[email] {
			fail(row.Row, fmt.Sprintf("文件内邮箱重复: %s", email))
			continue
		}
		if err := s.ensureEmailFree(ctx, email, ""); err != nil {
			if !errors.Is(err, ErrEmailExists) {
				return nil, err
			}
			fail(row.Row, fmt.Sprintf("邮箱已存在: %s", email))
			continue
		}

		password, err := generateTempPassword(10)
		if err != nil {
			s.logger.Error("生成临时密码失败", zap.Error(err))
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			fail(row.Row, "密码哈希失败")
			continue
		}

		seen[email] = true
		user := &model.User{
			Name:         row.Name,
			Email:        email,
			PasswordHash: string(hash),
			Role:         role,
			Status:       model.UserStatusActive,
		}
		user.CreatedBy = &adminID
		valid = append(valid, validatedRow{user: user, row: row.Row, password: password})
	}

	if len(valid) == 0 {
		return resp, nil
	}

	// 第二阶段：事务内批量写入，任一失败全部回滚
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for _, v := range valid {
			if err := tx.User.Create(ctx, v.user); err != nil {
				return fmt.Errorf("第 %d 行写入数据库失败，已回滚全部导入: %w", v.row, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("导入用户失败，事务回滚", zap.Error(err))
		return nil, err
	}

	for _, v := range valid {
		resp.Success++
		resp.Created = append(resp.Created, dto.ImportedUser{
			Row:          v.row,
			Email:        v.user.Email,
			TempPassword: v.password,
		})
		s.audit.Log(ctx, AuditEntry{
			ActorID:    adminID,
			Action:     model.AuditActionCreate,
			EntityType: model.AuditEntityUser,
			EntityID:   v.user.UserID,
			New:        toUserResponse(v.user),
		})
	}
	s.logger.Info("批量导入用户完成",
		zap.Int("total", resp.Total),
		zap.Int("success", resp.Success),
		zap.Int("failed", resp.Failed),
	)
	return resp, nil
}

// ── 内部辅助方法 ──

func (s *userService) getUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return user, nil
}

// ensureEmailFree 邮箱未被其他用户占用；exceptID 为当前用户自身
func (s *userService) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	existing, err := s.repo.User.GetByEmail(ctx, email)
	if err == nil {
		if existing.UserID != exceptID {
			return ErrEmailExists
		}
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	s.logger.Error("查询邮箱失败", zap.Error(err))
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateTempPassword 生成指定长度的临时密码（至少包含一个字母和一个数字）
func generateTempPassword(length int) (string, error) {
	const letters = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	const digits = "23456789"
	const all = letters + digits

	if length < 8 {
		length = 8
	}

	pick := func(set string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return 0, err
		}
		return set[n.Int64()], nil
	}

	result := make([]byte, length)
	var err error
	if result[0], err = pick(letters); err != nil {
		return "", err
	}
	if result[1], err = pick(digits); err != nil {
		return "", err
	}
	for i := 2; i < length; i++ {
		if result[i], err = pick(all); err != nil {
			return "", err
		}
	}

	// Fisher-Yates 洗牌
	for i := length - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		result[i], result[j.Int64()] = result[j.Int64()], result[i]
	}
	return string(result), nil
}
