package models

import (
	"net/url"
	"time"
)

// Role enum
type Role string

const (
	RoleAdmin           Role = "Admin"
	RoleSecurityOfficer Role = "Security Officer"
	RoleOperator        Role = "Operator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSecurityOfficer, RoleOperator:
		return true
	}
	return false
}

// Resource names used for role gating
const (
	ResourceDashboard     = "dashboard"
	ResourceCameras       = "cameras"
	ResourceIncidents     = "incidents"
	ResourceCommanders    = "commanders"
	ResourceEmergency     = "emergency-response"
	ResourceCommandCenter = "ai-command-center"
	ResourceUsers         = "users"
)

// CanAccess reports whether role may use resource.
// Operators cannot manage cameras and only admins manage users.
func CanAccess(role Role, resource string) bool {
	if !role.Valid() {
		return false
	}
	switch resource {
	case ResourceCameras:
		return role != RoleOperator
	case ResourceUsers:
		return role == RoleAdmin
	}
	return true
}

// User model for authentication and the user directory
type User struct {
	ID           string    `gorm:"primaryKey;column:id" json:"id"`
	Name         string    `gorm:"column:name;index" json:"name"`
	Email        string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash" json:"-"`
	Role         Role      `gorm:"column:role;default:Operator" json:"role"`
	Avatar       string    `gorm:"column:avatar" json:"avatar"`
	LastActive   time.Time `gorm:"column:last_active" json:"lastActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// AvatarURL is the generated avatar for an email address
func AvatarURL(email string) string {
	return "https://i.pravatar.cc/150?u=" + url.QueryEscape(email)
}
