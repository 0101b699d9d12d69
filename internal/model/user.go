package model

import (
	"time"
)

// User 用户目录中 IM 需要的最小字段集，账号体系由外部服务维护
type User struct {
	ID        uint64  `gorm:"primaryKey"`
	Username  *string `gorm:"type:varchar(50);uniqueIndex:idx_username"`
	Nickname  string  `gorm:"type:varchar(64)"`
	AvatarURL string  `gorm:"type:varchar(255)"`
	IsBan     bool    `gorm:"type:tinyint(1);default:0"`
	IsDelete  bool    `gorm:"type:tinyint(1);default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

// Active 未封禁且未注销
func (u *User) Active() bool {
	return u != nil && !u.IsBan && !u.IsDelete
}
