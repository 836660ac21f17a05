// internal/models/user.go
package models

import "strings"

type User struct {
	BaseModel
	Username  string   `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email     string   `json:"email" gorm:"uniqueIndex;size:255;not null"`
	FirstName string   `json:"first_name" gorm:"size:100"`
	LastName  string   `json:"last_name" gorm:"size:100"`
	Role      UserRole `json:"role" gorm:"type:varchar(20);not null;default:'employee'"`
	IsDeleted bool     `json:"-" gorm:"default:false;index"`

	// Relationships
	Licenses []License `json:"licenses,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
