package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Atul7206/stuwork-backend/internal/model"
	"github.com/Atul7206/stuwork-backend/internal/pkg/metrics"
	"github.com/Atul7206/stuwork-backend/internal/pkg/realtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type createJobRequest struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description" binding:"required"`
	Location     string   `json:"location" binding:"required"`
	Salary       string   `json:"salary"`
	Type         string   `json:"type"`
	Requirements []string `json:"requirements"`
	Skills       []string `json:"skills"`
	Benefits     string   `json:"benefits"`
}

type updateJobRequest struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Location     *string   `json:"location"`
	Salary       *string   `json:"salary"`
	Type         *string   `json:"type"`
	Requirements *[]string `json:"requirements"`
	Skills       *[]string `json:"skills"`
	Benefits     *string   `json:"benefits"`
	IsActive     *bool     `json:"isActive"`
}

type applicationStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func validJobType(t string) bool {
	switch t {
	case model.JobTypeFullTime, model.JobTypePartTime, model.JobTypeInternship, model.JobTypeContract:
		return true
	}
	return false
}

// handleListJobs 返回所有仍在招的职位，公开接口。
func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.jobs.ListActive(c.Request.Context())
	if err != nil {
		s.logger.Error("list jobs failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// handleGetJob 返回单个职位详情（含投递列表）。
func (s *Server) handleGetJob(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	job, err := s.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleCreateJob 发布职位，发布者收到 job_update 推送确认。
func (s *Server) handleCreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title, description and location are required"})
		return
	}

	jobType := req.Type
	if jobType == "" {
		jobType = model.JobTypeFullTime
	}
	if !validJobType(jobType) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid job type"})
		return
	}
	salary := req.Salary
	if salary == "" {
		salary = "Not specified"
	}

	employerID := c.GetUint("userID")
	job := &model.Job{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		Salary:       salary,
		Type:         jobType,
		Requirements: req.Requirements,
		Skills:       req.Skills,
		Benefits:     req.Benefits,
		EmployerID:   employerID,
		IsActive:     true,
	}
	if err := s.jobs.Create(c.Request.Context(), job); err != nil {
		s.logger.Error("create job failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	s.publisher.Publish(employerID, realtime.EventJobUpdate, gin.H{
		"jobId":  job.ID,
		"action": "created",
		"job":    job,
	})

	s.logger.Info("job created", slog.Uint64("job_id", uint64(job.ID)), slog.Uint64("employer_id", uint64(employerID)))
	c.JSON(http.StatusCreated, gin.H{"message": "Job created successfully", "job": job})
}

// handleUpdateJob 更新职位字段，仅限发布者本人。
func (s *Server) handleUpdateJob(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	job, ok := s.loadOwnedJob(c, id)
	if !ok {
		return
	}

	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.Salary != nil {
		updates["salary"] = *req.Salary
	}
	if req.Type != nil {
		if !validJobType(*req.Type) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid job type"})
			return
		}
		updates["type"] = *req.Type
	}
	// map 更新不走 gorm 序列化器，列表字段手动编码
	if req.Requirements != nil {
		updates["requirements"] = jsonList(*req.Requirements)
	}
	if req.Skills != nil {
		updates["skills"] = jsonList(*req.Skills)
	}
	if req.Benefits != nil {
		updates["benefits"] = *req.Benefits
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No updates"})
		return
	}

	updated, err := s.jobs.Update(c.Request.Context(), job.ID, updates)
	if err != nil {
		s.logger.Error("update job failed", slog.Uint64("job_id", uint64(job.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job updated successfully", "job": updated})
}

// handleCompleteJob 把职位标记为已完成并下线。
func (s *Server) handleCompleteJob(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	job, ok := s.loadOwnedJob(c, id)
	if !ok {
		return
	}

	updated, err := s.jobs.Update(c.Request.Context(), job.ID, map[string]interface{}{
		"completed": true,
		"is_active": false,
	})
	if err != nil {
		s.logger.Error("complete job failed", slog.Uint64("job_id", uint64(job.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job marked as completed", "job": updated})
}

// handleApplyJob 投递职位。
//
// 重复投递靠 (job_id, user_id) 唯一索引挡住，不做先查后写。
func (s *Server) handleApplyJob(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	userID := c.GetUint("userID")

	job, err := s.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if !job.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{"message": "This job is no longer accepting applications"})
		return
	}

	app := &model.Application{
		JobID:  job.ID,
		UserID: userID,
		Status: model.ApplicationPending,
	}
	if err := s.jobs.AddApplication(c.Request.Context(), app); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "You have already applied for this job"})
			return
		}
		s.logger.Error("apply job failed", slog.Uint64("job_id", uint64(job.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	metrics.ApplicationsSubmittedTotal.Inc()

	applicantName := "A student"
	if applicant, err := s.users.FindByID(c.Request.Context(), userID); err == nil {
		applicantName = applicant.Name
	}
	jobID := job.ID
	s.createNotification(c, job.EmployerID,
		fmt.Sprintf("%s applied for your job: %s", applicantName, job.Title),
		model.NotificationNewApplication, &jobID)
	s.publisher.Publish(job.EmployerID, realtime.EventNewApplication, gin.H{
		"jobId":         job.ID,
		"jobTitle":      job.Title,
		"applicantId":   userID,
		"applicantName": applicantName,
	})

	s.logger.Info("application submitted", slog.Uint64("job_id", uint64(job.ID)), slog.Uint64("user_id", uint64(userID)))
	c.JSON(http.StatusOK, gin.H{"message": "Application submitted successfully"})
}

// handleMyJobs 返回当前雇主发布的所有职位。
func (s *Server) handleMyJobs(c *gin.Context) {
	jobs, err := s.jobs.ListByEmployer(c.Request.Context(), c.GetUint("userID"))
	if err != nil {
		s.logger.Error("list employer jobs failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// handleMyApplications 返回当前学生投递过的职位，附带投递状态。
func (s *Server) handleMyApplications(c *gin.Context) {
	userID := c.GetUint("userID")
	jobs, err := s.jobs.ListAppliedBy(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("list applications failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	out := make([]gin.H, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		for _, app := range job.Applications {
			if app.UserID != userID {
				continue
			}
			out = append(out, gin.H{
				"job":               job,
				"applicationStatus": app.Status,
				"appliedAt":         app.AppliedAt,
			})
			break
		}
	}
	c.JSON(http.StatusOK, out)
}

// handleApplicationStatus 由发布者裁决一条投递。
//
// 录用会级联：该职位其余 pending 投递全部转为 rejected（已终态的不动），
// 职位同时下线。每个被动拒绝的学生都会收到通知和推送。
func (s *Server) handleApplicationStatus(c *gin.Context) {
	jobID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	appID, ok := paramUint(c, "applicationId")
	if !ok {
		return
	}

	var req applicationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Status is required"})
		return
	}
	if req.Status != model.ApplicationAccepted && req.Status != model.ApplicationRejected {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid status"})
		return
	}

	job, ok := s.loadOwnedJob(c, jobID)
	if !ok {
		return
	}

	var target *model.Application
	for i := range job.Applications {
		if job.Applications[i].ID == appID {
			target = &job.Applications[i]
			break
		}
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Application not found"})
		return
	}

	statuses := map[uint]string{target.ID: req.Status}
	var cascaded []model.Application
	deactivate := false
	if req.Status == model.ApplicationAccepted {
		deactivate = true
		for i := range job.Applications {
			other := &job.Applications[i]
			if other.ID != target.ID && other.Status == model.ApplicationPending {
				statuses[other.ID] = model.ApplicationRejected
				cascaded = append(cascaded, *other)
			}
		}
	}

	if err := s.jobs.UpdateApplicationStatuses(c.Request.Context(), job.ID, statuses, deactivate); err != nil {
		s.logger.Error("update application status failed",
			slog.Uint64("job_id", uint64(job.ID)),
			slog.Uint64("application_id", uint64(appID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	relatedID := job.ID
	for _, rejected := range cascaded {
		s.createNotification(c, rejected.UserID,
			fmt.Sprintf("Your application for %q has been rejected.", job.Title),
			model.NotificationApplicationRejected, &relatedID)
		s.publisher.Publish(rejected.UserID, realtime.EventApplicationUpdate, gin.H{
			"jobId":    job.ID,
			"jobTitle": job.Title,
			"status":   model.ApplicationRejected,
		})
	}

	var message string
	var notifType string
	if req.Status == model.ApplicationAccepted {
		message = fmt.Sprintf("Congratulations! Your application for %q has been accepted!", job.Title)
		notifType = model.NotificationApplicationAccepted
	} else {
		message = fmt.Sprintf("Your application for %q has been rejected.", job.Title)
		notifType = model.NotificationApplicationRejected
	}
	s.createNotification(c, target.UserID, message, notifType, &relatedID)
	s.publisher.Publish(target.UserID, realtime.EventApplicationUpdate, gin.H{
		"jobId":    job.ID,
		"jobTitle": job.Title,
		"status":   req.Status,
	})

	s.publisher.Publish(job.EmployerID, realtime.EventJobUpdate, gin.H{
		"jobId":    job.ID,
		"action":   "application_" + req.Status,
		"isActive": !deactivate && job.IsActive,
	})

	s.logger.Info("application status updated",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.Uint64("application_id", uint64(appID)),
		slog.String("status", req.Status))
	c.JSON(http.StatusOK, gin.H{"message": "Application status updated successfully"})
}

// loadOwnedJob 取职位并校验归属；失败时自己写响应。
func (s *Server) loadOwnedJob(c *gin.Context, id uint) (*model.Job, bool) {
	job, err := s.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Job not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return nil, false
	}
	if job.EmployerID != c.GetUint("userID") {
		c.JSON(http.StatusForbidden, gin.H{"message": "Not authorized to manage this job"})
		return nil, false
	}
	return job, true
}

func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// paramUint 解析路径参数为 uint，失败时写 400。
func paramUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid " + name})
		return 0, false
	}
	return uint(v), true
}
