package models

import "gorm.io/gorm"

type StudyGroup struct {
	gorm.Model
	Name        string `gorm:"column:name;size:255;not null" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description"`
	Topic       string `gorm:"column:topic;size:255" json:"topic"`
	CreatorID   uint   `gorm:"column:creator_id;not null" json:"creator_id"`

	Creator *User             `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Members []GroupMembership `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE;" json:"members,omitempty"`
}

// GroupMembership ties a user to a group. The composite unique index makes
// joining idempotent: a second join hits the existing row.
type GroupMembership struct {
	gorm.Model
	GroupID uint `gorm:"column:group_id;not null;uniqueIndex:idx_group_user" json:"group_id"`
	UserID  uint `gorm:"column:user_id;not null;uniqueIndex:idx_group_user" json:"user_id"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (StudyGroup) TableName() string {
	return "study_groups"
}
