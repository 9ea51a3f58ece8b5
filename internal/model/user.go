package model

import (
	"time"
)

// User 用户主表，资料维护由用户模块负责，这里只读取昵称、头像并维护在线状态
type User struct {
	ID        uint64 `gorm:"primaryKey"`
	Name      string `gorm:"type:varchar(50);not null"`
	Phone     string `gorm:"type:varchar(30);uniqueIndex:idx_phone"`
	Avatar    string `gorm:"type:varchar(255)"`
	IsOnline  bool   `gorm:"type:tinyint(1);default:0"`
	IsDelete  bool   `gorm:"type:tinyint(1);default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}
