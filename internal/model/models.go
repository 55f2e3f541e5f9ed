package model

import (
	"time"
)

// OTP 用途。
const (
	PurposeRegistration  = "registration"
	PurposePasswordReset = "password_reset"
)

// 投递状态。
const (
	ApplicationPending  = "pending"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// 通知类型。
const (
	NotificationApplicationAccepted = "application_accepted"
	NotificationApplicationRejected = "application_rejected"
	NotificationJobPosted           = "job_posted"
	NotificationJobRemoved          = "job_removed"
	NotificationNewApplication      = "new_application"
)

// 职位类型。
const (
	JobTypeFullTime   = "full-time"
	JobTypePartTime   = "part-time"
	JobTypeInternship = "internship"
	JobTypeContract   = "contract"
)

// OTP 表示一次性验证码。
//
// (email, purpose) 上有唯一复合索引：同一邮箱同一用途同时只存在一条记录，
// 发码时直接 upsert 覆盖旧记录，消除“先删后插”的竞态窗口。
type OTP struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_otp_email_purpose"` // 邮箱（小写）
	Code      string    `gorm:"type:char(6);not null"`                                        // 6 位数字验证码
	Purpose   string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_otp_email_purpose"`  // registration / password_reset
	ExpiresAt time.Time `gorm:"not null"`                                                     // 过期时间（签发后 5 分钟）
	IsUsed    bool      `gorm:"default:false"`                                                // 是否已被消费
	CreatedAt time.Time
}

// Job 表示一条职位发布。
//
// 职位只做软下线（isActive=false），从不硬删除。
type Job struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	Title        string        `gorm:"not null" json:"title"`                               // 标题
	Description  string        `gorm:"type:text;not null" json:"description"`               // 描述
	Location     string        `gorm:"not null" json:"location"`                            // 工作地点
	Salary       string        `gorm:"default:'Not specified'" json:"salary"`               // 薪资（自由文本）
	Type         string        `gorm:"type:varchar(16);default:'full-time'" json:"type"`    // full-time / part-time / internship / contract
	Requirements []string      `gorm:"serializer:json" json:"requirements"`                 // 任职要求
	Skills       []string      `gorm:"serializer:json" json:"skills"`                       // 技能要求
	Benefits     string        `gorm:"type:text" json:"benefits"`                           // 福利
	EmployerID   uint          `gorm:"not null;index" json:"employerId"`                    // 发布者（雇主）ID
	Employer     *User         `gorm:"foreignKey:EmployerID" json:"employer,omitempty"`     // 发布者
	Applications []Application `gorm:"foreignKey:JobID" json:"applicants"`                  // 投递列表
	IsActive     bool          `gorm:"default:true" json:"isActive"`                        // 是否对外可见
	Completed    bool          `gorm:"default:false" json:"completed"`                      // 是否已完成
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Application 是职位下的一条投递记录。
//
// (job_id, user_id) 上有唯一复合索引，重复投递在写入时即被数据库拒绝。
type Application struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	JobID     uint      `gorm:"not null;uniqueIndex:idx_app_job_user" json:"jobId"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_app_job_user" json:"userId"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`              // 投递人
	Status    string    `gorm:"type:varchar(16);default:pending" json:"status"`       // pending / accepted / rejected
	AppliedAt time.Time `gorm:"autoCreateTime" json:"appliedAt"`                      // 投递时间
}

// Notification 表示推送给某个用户的站内通知。
type Notification struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"userId"`                   // 接收者
	Message      string    `gorm:"type:text;not null" json:"message"`              // 通知文案
	Type         string    `gorm:"type:varchar(32)" json:"type"`                   // 通知类型
	RelatedJobID *uint     `json:"relatedJobId,omitempty"`                         // 关联职位（可空）
	RelatedJob   *Job      `gorm:"foreignKey:RelatedJobID" json:"relatedJob,omitempty"`
	Read         bool      `gorm:"default:false" json:"read"`                      // 是否已读
	CreatedAt    time.Time `json:"createdAt"`
}
