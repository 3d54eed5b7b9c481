package reward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"github.com/qs3c/chirp_analysis/internal/model"
	"github.com/qs3c/chirp_analysis/internal/scoring"
)

// StatsSource 孩子已完成练习的累计统计
type StatsSource interface {
	CompletedStats(ctx context.Context, childID string) (int64, float64, error)
}

// UnlockStore 解锁记录存储
type UnlockStore interface {
	ListTypes(ctx context.Context, childID string) ([]string, error)
	CreateIfAbsent(ctx context.Context, unlock *model.CompanionUnlock) (bool, error)
}

// Engine 按顺序对规则求值并发放解锁
type Engine struct {
	rules   []Rule
	stats   StatsSource
	unlocks UnlockStore
	now     func() time.Time
}

// NewEngine 创建规则引擎
func NewEngine(rules []Rule, stats StatsSource, unlocks UnlockStore) *Engine {
	return &Engine{
		rules:   rules,
		stats:   stats,
		unlocks: unlocks,
		now:     time.Now,
	}
}

// Rules 返回引擎使用的规则
func (e *Engine) Rules() []Rule {
	return e.rules
}

type evalInput struct {
	completedSessions int64
	avgScore          float64
	assessment        *scoring.Assessment
}

// Evaluate 对本次评估求值，返回新发放的解锁。
// 单条规则出错不影响其它规则，所有错误合并返回。
func (e *Engine) Evaluate(ctx context.Context, childID string, assessment *scoring.Assessment) ([]*model.CompanionUnlock, error) {
	if assessment == nil {
		return nil, fmt.Errorf("assessment is required")
	}

	completed, avg, err := e.stats.CompletedStats(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session stats: %w", err)
	}

	existing, err := e.unlocks.ListTypes(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unlocks: %w", err)
	}
	owned := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		owned[t] = struct{}{}
	}

	in := evalInput{completedSessions: completed, avgScore: avg, assessment: assessment}

	var (
		granted []*model.CompanionUnlock
		errs    []error
	)
	for _, rule := range e.rules {
		if err := rule.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := owned[rule.Reward.Type]; ok {
			continue
		}

		ok, err := rule.satisfied(in)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}

		unlock, err := e.grant(ctx, childID, rule)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		owned[rule.Reward.Type] = struct{}{}
		if unlock != nil {
			log.Printf("Reward: child %s unlocked %s (rule %s)", childID, rule.Reward.Type, rule.ID)
			granted = append(granted, unlock)
		}
	}

	return granted, errors.Join(errs...)
}

func (r Rule) satisfied(in evalInput) (bool, error) {
	switch r.Condition.Type {
	case ConditionSessionCount:
		return float64(in.completedSessions) >= r.Condition.Value, nil
	case ConditionScoreThreshold:
		if r.Condition.Metric == "" {
			return in.avgScore >= r.Condition.Value, nil
		}
		score, err := in.assessment.Metric(r.Condition.Metric)
		if err != nil {
			return false, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		return score >= r.Condition.Value, nil
	default:
		return false, fmt.Errorf("%w: rule %s has unknown condition %q", errMalformedRule, r.ID, r.Condition.Type)
	}
}

// grant 写入解锁记录，已存在时返回 nil
func (e *Engine) grant(ctx context.Context, childID string, rule Rule) (*model.CompanionUnlock, error) {
	meta := rule.Reward.Meta
	if meta == nil {
		meta = map[string]interface{}{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reward meta: %w", err)
	}

	unlock := &model.CompanionUnlock{
		ChildID:  childID,
		Type:     rule.Reward.Type,
		Meta:     datatypes.JSON(raw),
		EarnedAt: e.now(),
	}
	created, err := e.unlocks.CreateIfAbsent(ctx, unlock)
	if err != nil {
		return nil, fmt.Errorf("failed to save unlock: %w", err)
	}
	if !created {
		return nil, nil
	}
	return unlock, nil
}
