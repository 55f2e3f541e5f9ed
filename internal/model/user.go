package model

import "time"

// 用户角色。
const (
	RoleStudent  = "student"
	RoleEmployer = "employer"
	RoleAdmin    = "admin"
)

// User 表示系统用户（学生 / 雇主 / 管理员）。
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`                         // 用户 ID
	Name       string    `gorm:"not null" json:"name"`                         // 姓名
	Email      string    `gorm:"type:varchar(191);uniqueIndex" json:"email"`   // 邮箱（唯一，写入前小写去空格）
	Password   string    `gorm:"not null" json:"-"`                            // bcrypt 哈希
	Role       string    `gorm:"type:varchar(16);default:student" json:"role"` // 角色: student / employer / admin
	Phone      string    `gorm:"type:varchar(32)" json:"phone,omitempty"`      // 联系电话
	Skills     []string  `gorm:"serializer:json" json:"skills,omitempty"`      // 技能列表
	Experience string    `gorm:"type:text" json:"experience,omitempty"`        // 经历
	Address    string    `gorm:"type:varchar(255)" json:"address,omitempty"`   // 地址
	IsVerified bool      `gorm:"default:false" json:"isVerified"`              // 邮箱是否已验证
	CreatedAt  time.Time `json:"createdAt"`                                    // 创建时间
	UpdatedAt  time.Time `json:"updatedAt"`                                    // 更新时间
}

// PublicView 返回可放进响应体的用户摘要（注册 / 登录响应使用）。
func (u *User) PublicView() map[string]interface{} {
	return map[string]interface{}{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
	}
}
