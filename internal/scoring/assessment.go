package scoring

import (
	"encoding/json"
	"fmt"
)

// Feedback 面向家长的文字反馈
type Feedback struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
}

// Assessment 一次练习的综合评估结果
type Assessment struct {
	EyeContact      float64  `json:"eye_contact"`
	SpeechClarity   float64  `json:"speech_clarity"`
	ProsodyScore    float64  `json:"prosody_score"`
	EngagementLevel float64  `json:"engagement_level"`
	TurnTaking      float64  `json:"turn_taking"`
	OverallScore    float64  `json:"overall_score"`
	Feedback        Feedback `json:"feedback"`
	Transcript      string   `json:"transcript"`
}

// 可被奖励规则引用的指标
const (
	MetricOverall       = "overall"
	MetricEyeContact    = "eye_contact"
	MetricSpeechClarity = "speech_clarity"
)

// JSON 序列化结果，相同输入得到相同字节
func (a *Assessment) JSON() ([]byte, error) {
	return json.Marshal(a)
}

// Metric 按名称取分数，空名称表示总分
func (a *Assessment) Metric(name string) (float64, error) {
	switch name {
	case "", MetricOverall:
		return a.OverallScore, nil
	case MetricEyeContact:
		return a.EyeContact, nil
	case MetricSpeechClarity:
		return a.SpeechClarity, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", name)
	}
}
