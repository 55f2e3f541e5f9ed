package api

import (
	"context"

	"github.com/Atul7206/stuwork-backend/internal/model"

	"gorm.io/gorm"
)

// JobStore 是职位存取接口。数据库实现在下方，测试用内存假实现。
type JobStore interface {
	// ListActive 返回所有对外可见职位，新的在前，带雇主信息。
	ListActive(ctx context.Context) ([]model.Job, error)
	// FindByID 返回职位及其投递列表（含投递人），不存在时返回 gorm.ErrRecordNotFound。
	FindByID(ctx context.Context, id uint) (*model.Job, error)
	Create(ctx context.Context, job *model.Job) error
	Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Job, error)
	ListByEmployer(ctx context.Context, employerID uint) ([]model.Job, error)
	// ListAppliedBy 返回某用户投递过的所有职位（含投递列表）。
	ListAppliedBy(ctx context.Context, userID uint) ([]model.Job, error)
	// AddApplication 追加投递；(job_id, user_id) 冲突时返回 gorm.ErrDuplicatedKey。
	AddApplication(ctx context.Context, app *model.Application) error
	// UpdateApplicationStatuses 在一个事务里改写若干投递状态，deactivate
	// 为 true 时同时下线职位。
	UpdateApplicationStatuses(ctx context.Context, jobID uint, statuses map[uint]string, deactivate bool) error
}

// NotificationStore 是通知存取接口。
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID uint) ([]model.Notification, error)
	// MarkRead 只在记录属于 userID 时生效，返回是否命中。
	MarkRead(ctx context.Context, id, userID uint) (bool, error)
	MarkAllRead(ctx context.Context, userID uint) error
}

// UserStore 是 api 层需要的最小用户查询接口（WebSocket 握手与投递通知用）。
type UserStore interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

type dbJobStore struct {
	db *gorm.DB
}

func (s dbJobStore) ListActive(ctx context.Context) ([]model.Job, error) {
	jobs := []model.Job{}
	err := s.db.WithContext(ctx).
		Preload("Employer").
		Where("is_active = ?", true).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

func (s dbJobStore) FindByID(ctx context.Context, id uint) (*model.Job, error) {
	var job model.Job
	err := s.db.WithContext(ctx).
		Preload("Employer").
		Preload("Applications").
		Preload("Applications.User").
		First(&job, id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s dbJobStore) Create(ctx context.Context, job *model.Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s dbJobStore) Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Job, error) {
	if err := s.db.WithContext(ctx).Model(&model.Job{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s dbJobStore) ListByEmployer(ctx context.Context, employerID uint) ([]model.Job, error) {
	jobs := []model.Job{}
	err := s.db.WithContext(ctx).
		Preload("Applications").
		Preload("Applications.User").
		Where("employer_id = ?", employerID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

func (s dbJobStore) ListAppliedBy(ctx context.Context, userID uint) ([]model.Job, error) {
	jobs := []model.Job{}
	err := s.db.WithContext(ctx).
		Preload("Employer").
		Preload("Applications").
		Joins("JOIN applications ON applications.job_id = jobs.id").
		Where("applications.user_id = ?", userID).
		Order("jobs.created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

func (s dbJobStore) AddApplication(ctx context.Context, app *model.Application) error {
	return s.db.WithContext(ctx).Create(app).Error
}

func (s dbJobStore) UpdateApplicationStatuses(ctx context.Context, jobID uint, statuses map[uint]string, deactivate bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for appID, status := range statuses {
			if err := tx.Model(&model.Application{}).
				Where("id = ? AND job_id = ?", appID, jobID).
				Update("status", status).Error; err != nil {
				return err
			}
		}
		if deactivate {
			if err := tx.Model(&model.Job{}).Where("id = ?", jobID).Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

type dbNotificationStore struct {
	db *gorm.DB
}

func (s dbNotificationStore) Create(ctx context.Context, n *model.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

func (s dbNotificationStore) ListByUser(ctx context.Context, userID uint) ([]model.Notification, error) {
	notifications := []model.Notification{}
	err := s.db.WithContext(ctx).
		Preload("RelatedJob", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "title")
		}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

func (s dbNotificationStore) MarkRead(ctx context.Context, id, userID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	// RowsAffected 为 0 可能是重复标记（幂等），也可能是记录不存在
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s dbNotificationStore) MarkAllRead(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).
		Update("read", true).Error
}

type dbUserStore struct {
	db *gorm.DB
}

func (s dbUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
