package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 用户角色
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleIntern   = "intern"
)

// 用户状态
const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
)

// User 用户表，对应 users
type User struct {
	UserID       string     `gorm:"type:uuid;primaryKey"                          json:"user_id"`
	Name         string     `gorm:"type:varchar(100);not null"                    json:"name"`
	Email        string     `gorm:"type:varchar(255);not null;uniqueIndex"        json:"email"`
	PasswordHash string     `gorm:"type:varchar(255);not null"                    json:"-"`
	Role         string     `gorm:"type:varchar(20);not null;default:'employee'"  json:"role"`
	Status       string     `gorm:"type:varchar(20);not null;default:'active'"    json:"status"`
	LastLoginAt  *time.Time `                                                     json:"last_login_at,omitempty"`
	VersionedModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// BeforeCreate 补齐主键（SQLite 无 gen_random_uuid）
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	return nil
}

// IsActive 是否允许登录与打卡
func (u *User) IsActive() bool { return u.Status == UserStatusActive }
