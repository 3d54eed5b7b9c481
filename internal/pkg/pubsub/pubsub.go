package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelAnalysisProgress = "analysis_progress"
)

// 消息类型
const (
	TypeJobProgress    = "job_progress"
	TypeRewardUnlocked = "reward_unlocked"
)

// ProgressMessage 进度消息
type ProgressMessage struct {
	Type      string   `json:"type"`
	JobID     string   `json:"job_id"`
	SessionID string   `json:"session_id"`
	ChildID   string   `json:"child_id"`
	Status    string   `json:"status"`
	Step      string   `json:"step"`
	Percent   int      `json:"percent"`
	Message   string   `json:"message,omitempty"`
	Error     string   `json:"error,omitempty"`
	Unlocks   []string `json:"unlocks,omitempty"`
}

// 进度阶段常量
const (
	StepStarted   = "started"
	StepResolving = "resolving"
	StepVideo     = "video"
	StepSpeech    = "speech"
	StepAudio     = "audio"
	StepScoring   = "scoring"
	StepDone      = "done"
	StepFailed    = "failed"
	StepReward    = "reward"
)

// 阶段对应的进度百分比
var StepProgress = map[string]int{
	StepStarted:   10,
	StepResolving: 20,
	StepVideo:     40,
	StepSpeech:    60,
	StepAudio:     80,
	StepScoring:   90,
	StepDone:      100,
	StepReward:    100,
}

// 阶段对应的消息
var StepMessages = map[string]string{
	StepStarted:   "Analysis started",
	StepResolving: "Preparing recording",
	StepVideo:     "Facial analysis complete",
	StepSpeech:    "Speech transcription complete",
	StepAudio:     "Voice analysis complete",
	StepScoring:   "Calculating scores",
	StepDone:      "Analysis complete",
	StepFailed:    "Analysis failed",
	StepReward:    "New companion reward unlocked",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Fill 按阶段补齐类型、进度和消息
func (msg *ProgressMessage) Fill() {
	if msg.Type == "" {
		msg.Type = TypeJobProgress
	}
	if msg.Percent == 0 && msg.Step != "" {
		if percent, ok := StepProgress[msg.Step]; ok {
			msg.Percent = percent
		}
	}
	if msg.Message == "" && msg.Step != "" {
		if message, ok := StepMessages[msg.Step]; ok {
			msg.Message = message
		}
	}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Fill()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelAnalysisProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息，ctx 结束时返回
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelAnalysisProgress)
	defer pubsub.Close()

	// 等待订阅确认，保证之后发布的消息不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}
