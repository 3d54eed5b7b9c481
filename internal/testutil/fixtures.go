package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/chirp_analysis/internal/model"
)

// TestSession 创建测试练习记录
func TestSession(t *testing.T, db *gorm.DB, childID string, opts ...func(*model.Session)) *model.Session {
	t.Helper()

	session := &model.Session{
		ID:       uuid.NewString(),
		ChildID:  childID,
		MediaRef: fmt.Sprintf("media/%s/%d.webm", childID, time.Now().UnixNano()),
	}

	for _, opt := range opts {
		opt(session)
	}

	if err := db.Create(session).Error; err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return session
}

// WithScenario 设置场景
func WithScenario(scenarioID string) func(*model.Session) {
	return func(s *model.Session) {
		s.ScenarioID = &scenarioID
	}
}

// WithMediaRef 设置媒体引用
func WithMediaRef(ref string) func(*model.Session) {
	return func(s *model.Session) {
		s.MediaRef = ref
	}
}

// WithCompleted 标记为已完成分析并记录总分
func WithCompleted(overall float64) func(*model.Session) {
	return func(s *model.Session) {
		ref := uuid.NewString()
		now := time.Now()
		s.AnalysisRef = &ref
		s.OverallScore = &overall
		s.CompletedAt = &now
		s.ResultJSON = datatypes.JSON(fmt.Sprintf(`{"overall_score":%g}`, overall))
	}
}

// TestJob 创建测试任务
func TestJob(t *testing.T, db *gorm.DB, session *model.Session, status string) *model.AnalysisJob {
	t.Helper()

	job := &model.AnalysisJob{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		ChildID:   session.ChildID,
		Status:    status,
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// TestScenario 创建测试场景，rubric 为空时不带评分规则
func TestScenario(t *testing.T, db *gorm.DB, rubric string) *model.Scenario {
	t.Helper()

	scenario := &model.Scenario{
		ID:    uuid.NewString(),
		Title: fmt.Sprintf("Scenario %d", time.Now().UnixNano()%10000),
	}
	if rubric != "" {
		scenario.Rubric = datatypes.JSON(rubric)
	}

	if err := db.Create(scenario).Error; err != nil {
		t.Fatalf("Failed to create test scenario: %v", err)
	}

	return scenario
}

// TestUnlock 创建测试解锁记录
func TestUnlock(t *testing.T, db *gorm.DB, childID, unlockType string) *model.CompanionUnlock {
	t.Helper()

	unlock := &model.CompanionUnlock{
		ChildID:  childID,
		Type:     unlockType,
		Meta:     datatypes.JSON(`{}`),
		EarnedAt: time.Now(),
	}

	if err := db.Create(unlock).Error; err != nil {
		t.Fatalf("Failed to create test unlock: %v", err)
	}

	return unlock
}

// NewChildID 生成测试用的孩子 ID
func NewChildID() string {
	return uuid.NewString()
}
