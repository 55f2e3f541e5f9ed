package auth

import (
	"context"
	"time"

	"github.com/Atul7206/stuwork-backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormUserStore 是 UserStore 的数据库实现。
type gormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore 创建数据库用户存取。
func NewGormUserStore(db *gorm.DB) UserStore {
	return gormUserStore{db: db}
}

func (s gormUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s gormUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s gormUserStore) Create(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s gormUserStore) UpdatePassword(ctx context.Context, id uint, hash string) error {
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("password", hash).Error
}

func (s gormUserStore) UpdateProfile(ctx context.Context, id uint, updates map[string]interface{}) (*model.User, error) {
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// gormOTPStore 是 OTPStore 的数据库实现。
type gormOTPStore struct {
	db *gorm.DB
}

// NewGormOTPStore 创建数据库验证码存取。
func NewGormOTPStore(db *gorm.DB) OTPStore {
	return gormOTPStore{db: db}
}

// Replace 依赖 (email, purpose) 唯一索引做 upsert：
// 同键旧记录被原地覆盖，不存在“先删后插”的竞态窗口。
func (s gormOTPStore) Replace(ctx context.Context, otp *model.OTP) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}, {Name: "purpose"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "expires_at", "is_used", "created_at"}),
	}).Create(otp).Error
}

func (s gormOTPStore) FindValid(ctx context.Context, email, code, purpose string, now time.Time) (*model.OTP, error) {
	var record model.OTP
	err := s.db.WithContext(ctx).
		Where("email = ? AND code = ? AND purpose = ? AND is_used = ? AND expires_at > ?",
			email, code, purpose, false, now).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s gormOTPStore) MarkUsed(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&model.OTP{}).Where("id = ?", id).Update("is_used", true).Error
}

func (s gormOTPStore) DeleteByEmailPurpose(ctx context.Context, email, purpose string) error {
	return s.db.WithContext(ctx).Where("email = ? AND purpose = ?", email, purpose).Delete(&model.OTP{}).Error
}
