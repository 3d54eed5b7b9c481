package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Weights 四项主要指标的权重
type Weights struct {
	EyeContact    float64 `json:"eye_contact"`
	SpeechClarity float64 `json:"speech_clarity"`
	Prosody       float64 `json:"prosody"`
	Engagement    float64 `json:"engagement"`
}

func (w Weights) sum() float64 {
	return w.EyeContact + w.SpeechClarity + w.Prosody + w.Engagement
}

func (w Weights) valid() bool {
	for _, v := range []float64{w.EyeContact, w.SpeechClarity, w.Prosody, w.Engagement} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return w.sum() > 0
}

// normalized 权重之和归一化为 1，不合法时退回默认权重
func (w Weights) normalized() Weights {
	if !w.valid() {
		return DefaultWeights
	}
	s := w.sum()
	return Weights{
		EyeContact:    w.EyeContact / s,
		SpeechClarity: w.SpeechClarity / s,
		Prosody:       w.Prosody / s,
		Engagement:    w.Engagement / s,
	}
}

// Thresholds 反馈阈值
type Thresholds struct {
	Strength              float64 `json:"strength"`
	EyeContactImprovement float64 `json:"eye_contact_improvement"`
	Improvement           float64 `json:"improvement"`
}

// RateBand 理想语速区间（开区间，单位 词/分钟）
type RateBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b RateBand) contains(rate float64) bool {
	return rate > b.Min && rate < b.Max
}

var (
	DefaultWeights = Weights{EyeContact: 0.25, SpeechClarity: 0.25, Prosody: 0.25, Engagement: 0.25}

	DefaultThresholds = Thresholds{Strength: 0.7, EyeContactImprovement: 0.4, Improvement: 0.5}

	DefaultRateBand = RateBand{Min: 80, Max: 180}
)

// Rubric 场景评分规则，字段均已补齐默认值
type Rubric struct {
	Weights    Weights
	Thresholds Thresholds
	RateBand   RateBand
}

// DefaultRubric 无场景或场景未配置评分规则时使用
func DefaultRubric() *Rubric {
	return &Rubric{
		Weights:    DefaultWeights,
		Thresholds: DefaultThresholds,
		RateBand:   DefaultRateBand,
	}
}

type rubricDoc struct {
	Weights    *Weights `json:"weights"`
	Thresholds *struct {
		Strength              *float64 `json:"strength"`
		EyeContactImprovement *float64 `json:"eye_contact_improvement"`
		Improvement           *float64 `json:"improvement"`
	} `json:"thresholds"`
	SpeakingRate *RateBand `json:"speaking_rate"`
}

// ParseRubric 解析场景中存储的评分规则 JSON，空内容返回 nil
func ParseRubric(raw []byte) (*Rubric, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var doc rubricDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid rubric: %w", err)
	}

	r := DefaultRubric()
	if doc.Weights != nil {
		r.Weights = doc.Weights.normalized()
	}
	if t := doc.Thresholds; t != nil {
		if t.Strength != nil {
			r.Thresholds.Strength = *t.Strength
		}
		if t.EyeContactImprovement != nil {
			r.Thresholds.EyeContactImprovement = *t.EyeContactImprovement
		}
		if t.Improvement != nil {
			r.Thresholds.Improvement = *t.Improvement
		}
	}
	if b := doc.SpeakingRate; b != nil && b.Min >= 0 && b.Max > b.Min {
		r.RateBand = *b
	}
	return r, nil
}
