package model

import "time"

// Group 群组，成员关系由群组模块维护
type Group struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(100);not null"`
	Avatar    string `gorm:"type:varchar(255)"`
	CreatorID uint64 `gorm:"index"`
	IsDelete  bool   `gorm:"type:tinyint(1);default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Group) TableName() string { return "groups" }
