package capability

import (
	"context"
	"log"
	"time"
)

type audioRequest struct {
	AudioURL string `json:"audio_url"`
}

type audioResponse struct {
	PitchMean    *float64 `json:"pitch_mean"`
	PitchVar     *float64 `json:"pitch_var"`
	EnergyMean   *float64 `json:"energy_mean"`
	SpeakingRate *float64 `json:"speaking_rate"`
	ToneLabel    string   `json:"tone_label"`
	ProsodyScore *float64 `json:"prosody_score"`
}

// AudioClient 音高、能量与语速分析
type AudioClient struct {
	caller  *caller
	timeout time.Duration
}

// NewAudioClient 创建音频分析客户端
func NewAudioClient(baseURL string, timeout time.Duration) *AudioClient {
	return &AudioClient{caller: newCaller(baseURL), timeout: timeout}
}

// AnalyzeAudio 调用失败时返回中性结果，不会返回错误
func (c *AudioClient) AnalyzeAudio(ctx context.Context, audioURL string) *AudioResult {
	var resp audioResponse
	if err := c.caller.postJSON(ctx, c.timeout, "/analyze/audio", audioRequest{AudioURL: audioURL}, &resp); err != nil {
		log.Printf("Capability audio: %v, using fallback", err)
		return FallbackAudio()
	}

	result, err := resp.toResult()
	if err != nil {
		log.Printf("Capability audio: invalid response: %v, using fallback", err)
		return FallbackAudio()
	}
	return result
}

func (r *audioResponse) toResult() (*AudioResult, error) {
	prosody, err := required("prosody_score", r.ProsodyScore)
	if err != nil {
		return nil, err
	}
	rate, err := required("speaking_rate", r.SpeakingRate)
	if err != nil {
		return nil, err
	}
	pitchMean, err := optional("pitch_mean", r.PitchMean)
	if err != nil {
		return nil, err
	}
	pitchVar, err := optional("pitch_var", r.PitchVar)
	if err != nil {
		return nil, err
	}
	energy, err := optional("energy_mean", r.EnergyMean)
	if err != nil {
		return nil, err
	}

	tone := r.ToneLabel
	if tone == "" {
		tone = unableToDetermine
	}

	return &AudioResult{
		PitchMean:    pitchMean,
		PitchVar:     pitchVar,
		EnergyMean:   energy,
		SpeakingRate: rate,
		ToneLabel:    tone,
		ProsodyScore: prosody,
	}, nil
}
