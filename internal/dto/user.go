package dto

// ── 用户模块 DTO ──

// CreateUserRequest 管理员创建用户请求
type CreateUserRequest struct {
	Name     string `json:"name"     binding:"required,min=2,max=100"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=64"`
	Role     string `json:"role"     binding:"omitempty,oneof=admin employee intern"`
}

// UserListRequest 用户列表查询参数
type UserListRequest struct {
	PaginationRequest
	Role    string `form:"role"    binding:"omitempty,oneof=admin employee intern"`
	Status  string `form:"status"  binding:"omitempty,oneof=active inactive suspended"`
	Keyword string `form:"keyword" binding:"omitempty,max=50"`
}

// UpdateUserRequest 更新用户信息请求（仅非 nil 字段生效）
type UpdateUserRequest struct {
	Name    *string `json:"name"    binding:"omitempty,min=2,max=100"`
	Email   *string `json:"email"   binding:"omitempty,email"`
	Role    *string `json:"role"    binding:"omitempty,oneof=admin employee intern"`
	Version int     `json:"version" binding:"required,min=1"`
}

// UpdateUserStatusRequest 启用/停用用户
type UpdateUserStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active inactive suspended"`
}

// ImportUserError 导入失败的单行
type ImportUserError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportedUser 导入成功的单行，临时密码只在本次响应中返回
type ImportedUser struct {
	Row          int    `json:"row"`
	Email        string `json:"email"`
	TempPassword string `json:"temp_password"`
}

// ImportUserResponse 批量导入结果
type ImportUserResponse struct {
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Created []ImportedUser    `json:"created,omitempty"`
	Errors  []ImportUserError `json:"errors,omitempty"`
}
