package reward

import (
	"errors"
	"fmt"
	"math"

	"github.com/qs3c/chirp_analysis/config"
	"github.com/qs3c/chirp_analysis/internal/scoring"
)

// 条件类型
const (
	ConditionSessionCount   = "session_count"
	ConditionScoreThreshold = "score_threshold"
)

// Condition 规则触发条件
type Condition struct {
	Type   string
	Value  float64
	Metric string
}

// Grant 满足条件后发放的解锁
type Grant struct {
	Type string
	Meta map[string]interface{}
}

// Rule 一条奖励规则
type Rule struct {
	ID        string
	Condition Condition
	Reward    Grant
}

var errMalformedRule = errors.New("malformed reward rule")

// Validate 检查规则是否可被求值
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", errMalformedRule)
	}
	if r.Reward.Type == "" {
		return fmt.Errorf("%w: rule %s has no reward type", errMalformedRule, r.ID)
	}
	if math.IsNaN(r.Condition.Value) || math.IsInf(r.Condition.Value, 0) || r.Condition.Value < 0 {
		return fmt.Errorf("%w: rule %s has invalid value %v", errMalformedRule, r.ID, r.Condition.Value)
	}
	switch r.Condition.Type {
	case ConditionSessionCount:
		if r.Condition.Metric != "" {
			return fmt.Errorf("%w: rule %s: session_count takes no metric", errMalformedRule, r.ID)
		}
	case ConditionScoreThreshold:
		switch r.Condition.Metric {
		case "", scoring.MetricOverall, scoring.MetricEyeContact, scoring.MetricSpeechClarity:
		default:
			return fmt.Errorf("%w: rule %s has unknown metric %q", errMalformedRule, r.ID, r.Condition.Metric)
		}
	default:
		return fmt.Errorf("%w: rule %s has unknown condition %q", errMalformedRule, r.ID, r.Condition.Type)
	}
	return nil
}

// DefaultRules 内置奖励规则
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:        "first_session",
			Condition: Condition{Type: ConditionSessionCount, Value: 1},
			Reward:    Grant{Type: "starter_nest", Meta: map[string]interface{}{"title": "Starter Nest", "kind": "habitat"}},
		},
		{
			ID:        "five_sessions",
			Condition: Condition{Type: ConditionSessionCount, Value: 5},
			Reward:    Grant{Type: "explorer_hat", Meta: map[string]interface{}{"title": "Explorer Hat", "kind": "accessory"}},
		},
		{
			ID:        "ten_sessions",
			Condition: Condition{Type: ConditionSessionCount, Value: 10},
			Reward:    Grant{Type: "golden_wings", Meta: map[string]interface{}{"title": "Golden Wings", "kind": "accessory"}},
		},
		{
			ID:        "high_average",
			Condition: Condition{Type: ConditionScoreThreshold, Value: 0.8},
			Reward:    Grant{Type: "star_chirper", Meta: map[string]interface{}{"title": "Star Chirper", "kind": "title"}},
		},
		{
			ID:        "eye_contact_star",
			Condition: Condition{Type: ConditionScoreThreshold, Value: 0.8, Metric: scoring.MetricEyeContact},
			Reward:    Grant{Type: "bright_eyes_badge", Meta: map[string]interface{}{"title": "Bright Eyes", "kind": "badge"}},
		},
		{
			ID:        "clear_speaker",
			Condition: Condition{Type: ConditionScoreThreshold, Value: 0.8, Metric: scoring.MetricSpeechClarity},
			Reward:    Grant{Type: "clear_voice_badge", Meta: map[string]interface{}{"title": "Clear Voice", "kind": "badge"}},
		},
	}
}

// RulesFromConfig 配置中没有规则时返回内置规则
func RulesFromConfig(cfg config.RewardsConfig) []Rule {
	if len(cfg.Rules) == 0 {
		return DefaultRules()
	}
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		rules = append(rules, Rule{
			ID: rc.ID,
			Condition: Condition{
				Type:   rc.Condition.Type,
				Value:  rc.Condition.Value,
				Metric: rc.Condition.Metric,
			},
			Reward: Grant{Type: rc.Reward.Type, Meta: rc.Reward.Meta},
		})
	}
	return rules
}
