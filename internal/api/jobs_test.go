package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Atul7206/stuwork-backend/internal/config"
	"github.com/Atul7206/stuwork-backend/internal/model"
	"github.com/Atul7206/stuwork-backend/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type mockJobStore struct {
	findByIDFunc       func(ctx context.Context, id uint) (*model.Job, error)
	addApplicationFunc func(ctx context.Context, app *model.Application) error
	createFunc         func(ctx context.Context, job *model.Job) error
	updateFunc         func(ctx context.Context, id uint, updates map[string]interface{}) (*model.Job, error)

	statusUpdates    map[uint]string
	deactivated      bool
	statusCalls      int
	applicationCalls int
}

func (m *mockJobStore) ListActive(ctx context.Context) ([]model.Job, error) { return nil, nil }

func (m *mockJobStore) FindByID(ctx context.Context, id uint) (*model.Job, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockJobStore) Create(ctx context.Context, job *model.Job) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, job)
	}
	job.ID = 1
	return nil
}

func (m *mockJobStore) Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Job, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, updates)
	}
	return m.findByIDFunc(ctx, id)
}

func (m *mockJobStore) ListByEmployer(ctx context.Context, employerID uint) ([]model.Job, error) {
	return nil, nil
}

func (m *mockJobStore) ListAppliedBy(ctx context.Context, userID uint) ([]model.Job, error) {
	return nil, nil
}

func (m *mockJobStore) AddApplication(ctx context.Context, app *model.Application) error {
	m.applicationCalls++
	return m.addApplicationFunc(ctx, app)
}

func (m *mockJobStore) UpdateApplicationStatuses(ctx context.Context, jobID uint, statuses map[uint]string, deactivate bool) error {
	m.statusCalls++
	m.statusUpdates = statuses
	m.deactivated = deactivate
	return nil
}

type mockNotificationStore struct {
	created       []model.Notification
	markReadFunc  func(ctx context.Context, id, userID uint) (bool, error)
	markAllCalls  int
	markAllUserID uint
}

func (m *mockNotificationStore) Create(ctx context.Context, n *model.Notification) error {
	n.ID = uint(len(m.created) + 1)
	m.created = append(m.created, *n)
	return nil
}

func (m *mockNotificationStore) ListByUser(ctx context.Context, userID uint) ([]model.Notification, error) {
	out := []model.Notification{}
	for _, n := range m.created {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationStore) MarkRead(ctx context.Context, id, userID uint) (bool, error) {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, id, userID)
	}
	return true, nil
}

func (m *mockNotificationStore) MarkAllRead(ctx context.Context, userID uint) error {
	m.markAllCalls++
	m.markAllUserID = userID
	return nil
}

type mockUserStore struct {
	users map[uint]*model.User
}

func (m *mockUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type publishedEvent struct {
	userID  uint
	event   string
	payload interface{}
}

type mockPublisher struct {
	events []publishedEvent
}

func (m *mockPublisher) Publish(userID uint, event string, payload interface{}) {
	m.events = append(m.events, publishedEvent{userID: userID, event: event, payload: payload})
}

func (m *mockPublisher) eventsFor(userID uint, event string) []publishedEvent {
	out := []publishedEvent{}
	for _, e := range m.events {
		if e.userID == userID && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestServer(jobs JobStore, notifications *mockNotificationStore, users UserStore, pub *mockPublisher) *Server {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()
	return &Server{
		cfg:           &config.Config{},
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		jobs:          jobs,
		notifications: notifications,
		users:         users,
		publisher:     pub,
	}
}

func serveAs(s *Server, userID uint, method, path string, handler gin.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, path, func(c *gin.Context) {
		c.Set("userID", userID)
		handler(c)
	})

	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApplyJob_Normal(t *testing.T) {
	job := &model.Job{ID: 5, Title: "Barista", EmployerID: 2, IsActive: true}
	jobs := &mockJobStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.Job, error) { return job, nil },
		addApplicationFunc: func(ctx context.Context, app *model.Application) error {
			app.ID = 1
			return nil
		},
	}
	notifications := &mockNotificationStore{}
	pub := &mockPublisher{}
	users := &mockUserStore{users: map[uint]*model.User{10: {ID: 10, Name: "Alice"}}}
	s := newTestServer(jobs, notifications, users, pub)

	w := serveAs(s, 10, http.MethodPost, "/jobs/5/apply", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "5"}}
		s.handleApplyJob(c)
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if jobs.applicationCalls != 1 {
		t.Fatalf("expected application persisted")
	}

	// 雇主收到落库通知和两条推送（new_notification + new_application）
	if len(notifications.created) != 1 || notifications.created[0].UserID != 2 {
		t.Fatalf("expected one notification for employer, got %+v", notifications.created)
	}
	if got := pub.eventsFor(2, "new_application"); len(got) != 1 {
		t.Fatalf("expected new_application push to employer")
	}
	if got := pub.eventsFor(2, "new_notification"); len(got) != 1 {
		t.Fatalf("expected new_notification push to employer")
	}
}

func TestApplyJob_Duplicate(t *testing.T) {
	job := &model.Job{ID: 5, Title: "Barista", EmployerID: 2, IsActive: true}
	jobs := &mockJobStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.Job, error) { return job, nil },
		addApplicationFunc: func(ctx context.Context, app *model.Application) error {
			return gorm.ErrDuplicatedKey
		},
	}
	notifications := &mockNotificationStore{}
	pub := &mockPublisher{}
	s := newTestServer(jobs, notifications, &mockUserStore{}, pub)

	w := serveAs(s, 10, http.MethodPost, "/jobs/5/apply", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "5"}}
		s.handleApplyJob(c)
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate application, got %d", w.Code)
	}
	if len(notifications.created) != 0 || len(pub.events) != 0 {
		t.Fatalf("expected no side effects on duplicate")
	}
}

func TestApplyJob_InactiveJob(t *testing.T) {
	job := &model.Job{ID: 5, EmployerID: 2, IsActive: false}
	jobs := &mockJobStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.Job, error) { return job, nil },
	}
	s := newTestServer(jobs, &mockNotificationStore{}, &mockUserStore{}, &mockPublisher{})

	w := serveAs(s, 10, http.MethodPost, "/jobs/5/apply", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "5"}}
		s.handleApplyJob(c)
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inactive job, got %d", w.Code)
	}
	if jobs.applicationCalls != 0 {
		t.Fatalf("expected no application written")
	}
}

func TestApplicationStatus_AcceptCascades(t *testing.T) {
	job := &model.Job{
		ID:         5,
		Title:      "Barista",
		EmployerID: 2,
		IsActive:   true,
		Applications: []model.Application{
			{ID: 1, JobID: 5, UserID: 10, Status: model.ApplicationPending},
			{ID: 2, JobID: 5, UserID: 11, Status: model.ApplicationPending},
			{ID: 3, JobID: 5, UserID: 12, Status: model.ApplicationRejected},
		},
	}
	jobs := &mockJobStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.Job, error) { return job, nil },
	}
	notifications := &mockNotificationStore{}
	pub := &mockPublisher{}
	s := newTestServer(jobs, notifications, &mockUserStore{}, pub)

	w := serveAs(s, 2, http.MethodPut, "/jobs/5/application/2/status", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "5"}, {Key: "applicationId", Value: "2"}}
		s.handleApplicationStatus(c)
	}, gin.H{"status": "accepted"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if jobs.statusCalls != 1 {
		t.Fatalf("expected one transactional status update")
	}
	if !jobs.deactivated {
		t.Fatalf("expected job deactivated on acceptance")
	}
	// 被录用者转 accepted，其余 pending 转 rejected，已终态的不动
	want := map[uint]string{2: model.ApplicationAccepted, 1: model.ApplicationRejected}
	if len(jobs.statusUpdates) != len(want) {
		t.Fatalf("unexpected status updates: %+v", jobs.statusUpdates)
	}
	for id, status := range want {
		if jobs.statusUpdates[id] != status {
			t.Fatalf("application %d: expected %s, got %s", id, status, jobs.statusUpdates[id])
		}
	}

	// 通知：user 10 被动拒绝，user 11 录用；user 12 不再收通知
	byUser := map[uint]string{}
	for _, n := range notifications.created {
		byUser[n.UserID] = n.Type
	}
	if byUser[10] != model.NotificationApplicationRejected {
		t.Fatalf("expected rejection notification for user 10, got %+v", byUser)
	}
	if byUser[11] != model.NotificationApplicationAccepted {
		t.Fatalf("expected acceptance notification for user 11, got %+v", byUser)
	}
	if _, ok := byUser[12]; ok {
		t.Fatalf("expected no notification for already-rejected user 12")
	}

	if got := pub.eventsFor(10, "application_update"); len(got) != 1 {
		t.Fatalf("expected application_update push to user 10")
	}
	if got := pub.eventsFor(11, "application_update"); len(got) != 1 {
		t.Fatalf("expected application_update push to user 11")
	}
	if got := pub.eventsFor(2, "job_update"); len(got) != 1 {
		t.Fatalf("expected job_update push to employer")
	}
}

func TestApplicationStatus_RejectDoesNotCascade(t *testing.T) {
	job := &model.Job{
		ID:         5,
		Title:      "Barista",
		EmployerID: 2,
		IsActive:   true,
		Applications: []model.Application{
			{ID: 1, JobID: 5, UserID: 10, Status: model.ApplicationPending},
			{ID: 2, JobID: 5, UserID: 11, Status: model.ApplicationPending},
		},
	}
	jobs := &mockJobStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.Job, error) { return job, nil },
	}
	notifications := &mockNotificationStore{}
	s := newTestServer(jobs, notifications, &mockUserStore{}, &mockPublisher{})

	w := serveAs(s, 2, http.MethodPut, "/jobs/5/application/1/status", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "5"}, {Key: "applicationId", Value: "1"}}
		s.handleApplicationStatus(c)
	}, gin.H{"status": "rejected"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if jobs.deactivated {
		t.Fatalf("rejection must not deactivate job")
	}
	if len(jobs.statusUpdates) != 1 || jobs.statusUpdates[1] != model.ApplicationRejected {
		t.Fatalf("expected only target rejected, got %+v", jobs.statusUpdates)
	}
	if len(notifications.created) != 1 || notifications.created[0].UserID != 10 {
		t.Fatalf("expected single rejection notification, got %+v", notifications.created)
	}
}

func TestApplicationStatus_NotOwner(t *testing.T) {
	job := &model.Job{ID: 5, EmployerID: 2, Applications: []model.Application{{ID: 1, UserID: 10, Status: model.ApplicationPending}}}
	jobs := &mockJobStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.Job, error) { return job, nil },
	}
	s := newTestServer(jobs, &mockNotificationStore{}, &mockUserStore{}, &mockPublisher{})

	w := serveAs(s, 99, http.MethodPut, "/jobs/5/application/1/status", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "5"}, {Key: "applicationId", Value: "1"}}
		s.handleApplicationStatus(c)
	}, gin.H{"status": "accepted"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", w.Code)
	}
	if jobs.statusCalls != 0 {
		t.Fatalf("expected no status change")
	}
}

func TestApplicationStatus_UnknownApplication(t *testing.T) {
	job := &model.Job{ID: 5, EmployerID: 2}
	jobs := &mockJobStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.Job, error) { return job, nil },
	}
	s := newTestServer(jobs, &mockNotificationStore{}, &mockUserStore{}, &mockPublisher{})

	w := serveAs(s, 2, http.MethodPut, "/jobs/5/application/42/status", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "5"}, {Key: "applicationId", Value: "42"}}
		s.handleApplicationStatus(c)
	}, gin.H{"status": "accepted"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCompleteJob(t *testing.T) {
	job := &model.Job{ID: 5, EmployerID: 2, IsActive: true}
	var gotUpdates map[string]interface{}
	jobs := &mockJobStore{
		findByIDFunc: func(ctx context.Context, id uint) (*model.Job, error) { return job, nil },
		updateFunc: func(ctx context.Context, id uint, updates map[string]interface{}) (*model.Job, error) {
			gotUpdates = updates
			return job, nil
		},
	}
	s := newTestServer(jobs, &mockNotificationStore{}, &mockUserStore{}, &mockPublisher{})

	w := serveAs(s, 2, http.MethodPut, "/jobs/5/complete", func(c *gin.Context) {
		c.Params = gin.Params{{Key: "id", Value: "5"}}
		s.handleCompleteJob(c)
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotUpdates["completed"] != true || gotUpdates["is_active"] != false {
		t.Fatalf("expected completed+deactivated, got %+v", gotUpdates)
	}
}

func TestCreateJob_DefaultsAndPush(t *testing.T) {
	jobs := &mockJobStore{}
	pub := &mockPublisher{}
	s := newTestServer(jobs, &mockNotificationStore{}, &mockUserStore{}, pub)

	w := serveAs(s, 2, http.MethodPost, "/jobs", func(c *gin.Context) {
		s.handleCreateJob(c)
	}, gin.H{"title": "Barista", "description": "Make coffee", "location": "Campus"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Job model.Job `json:"job"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Job.Salary != "Not specified" {
		t.Fatalf("expected salary default, got %q", resp.Job.Salary)
	}
	if resp.Job.Type != model.JobTypeFullTime {
		t.Fatalf("expected type default, got %q", resp.Job.Type)
	}
	if !resp.Job.IsActive {
		t.Fatalf("expected new job active")
	}
	if got := pub.eventsFor(2, "job_update"); len(got) != 1 {
		t.Fatalf("expected job_update push to creator")
	}
}
