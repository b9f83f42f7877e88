package models

import (
	"time"

	"gorm.io/gorm"
)

// Model is the base model with common fields for all database entities
type Model struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// MemberRole is an operator's role inside an organization
type MemberRole string

const (
	RoleOwner   MemberRole = "owner"
	RoleAdmin   MemberRole = "admin"
	RoleManager MemberRole = "manager"
	RoleViewer  MemberRole = "viewer"
)

// CanOperateDevices reports whether the role may issue commands and pair devices.
func (r MemberRole) CanOperateDevices() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager:
		return true
	default:
		return false
	}
}

// CanUnpairDevices reports whether the role may release a device from its organization.
func (r MemberRole) CanUnpairDevices() bool {
	return r == RoleOwner || r == RoleAdmin
}

// IsValid reports whether r is a known role.
func (r MemberRole) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleViewer:
		return true
	default:
		return false
	}
}

// OrganizationMember maps an operator to a role within an organization.
// Organizations themselves are owned by the account platform.
type OrganizationMember struct {
	Model
	OrganizationID uint       `json:"organization_id" gorm:"Column:organization_id;uniqueIndex:idx_org_member;not null"`
	UserID         string     `json:"user_id" gorm:"Column:user_id;uniqueIndex:idx_org_member;size:64;not null"`
	Role           MemberRole `json:"role" gorm:"Column:role;size:16;not null"`
}
