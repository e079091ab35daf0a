package auth

import (
	"time"

	"github.com/lib/pq"
)

// Primary roles. Plain residents are unregistered spectators and never get an
// account, so only the two leader roles exist here.
const (
	RoleTowerLeader   = "LDT"
	RoleGeneralLeader = "LDG"
)

// Secondary permissions carried alongside the primary role.
const (
	PermWasteAdmin = "waste_admin"
	PermClapAdmin  = "clap_admin"
	PermGasAdmin   = "gas_admin"
)

type Session struct {
	SessionID string    `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"not null;unique" json:"-"`
	ExpiresAt time.Time `gorm:"not null"`
}

type User struct {
	UserID         string         `gorm:"primaryKey" json:"user_id"`
	Username       string         `gorm:"uniqueIndex;not null" json:"username"`
	Password       string         `gorm:"-" json:"password,omitempty"`
	HashedPassword string         `json:"-"`
	Role           string         `gorm:"default:'LDT'" json:"role"`
	Staff          bool           `gorm:"default:false" json:"staff"`
	TowerID        *uint          `json:"tower_id,omitempty"`
	Permissions    pq.StringArray `gorm:"type:text[]" json:"permissions,omitempty"`
	Session        Session        `gorm:"foreignKey:UserID" json:"-"`
}

func (Session) TableName() string { return "app_auth.sessions" }
func (User) TableName() string    { return "app_auth.users" }

func (u *User) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
