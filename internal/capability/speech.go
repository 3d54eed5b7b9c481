package capability

import (
	"context"
	"fmt"
	"log"
	"time"
)

type speechRequest struct {
	AudioURL string `json:"audio_url"`
	Language string `json:"language"`
}

type speechResponse struct {
	Transcript *string  `json:"transcript"`
	Words      []Word   `json:"words"`
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence"`
}

// SpeechClient 语音转写
type SpeechClient struct {
	caller   *caller
	timeout  time.Duration
	language string
}

// NewSpeechClient 创建语音转写客户端
func NewSpeechClient(baseURL string, timeout time.Duration, language string) *SpeechClient {
	return &SpeechClient{caller: newCaller(baseURL), timeout: timeout, language: language}
}

// Transcribe 调用失败时返回空转写，不会返回错误
func (c *SpeechClient) Transcribe(ctx context.Context, audioURL string) *SpeechResult {
	var resp speechResponse
	req := speechRequest{AudioURL: audioURL, Language: c.language}
	if err := c.caller.postJSON(ctx, c.timeout, "/stt", req, &resp); err != nil {
		log.Printf("Capability speech: %v, using fallback", err)
		return FallbackSpeech(c.language)
	}

	result, err := resp.toResult(c.language)
	if err != nil {
		log.Printf("Capability speech: invalid response: %v, using fallback", err)
		return FallbackSpeech(c.language)
	}
	return result
}

func (r *speechResponse) toResult(requested string) (*SpeechResult, error) {
	if r.Transcript == nil {
		return nil, fmt.Errorf("%w: transcript", errMissingField)
	}
	confidence, err := optional("confidence", r.Confidence)
	if err != nil {
		return nil, err
	}

	words := r.Words
	if words == nil {
		words = []Word{}
	}
	for i, w := range words {
		if err := finite(fmt.Sprintf("words[%d].start", i), w.Start); err != nil {
			return nil, err
		}
		if err := finite(fmt.Sprintf("words[%d].end", i), w.End); err != nil {
			return nil, err
		}
		if err := finite(fmt.Sprintf("words[%d].confidence", i), w.Confidence); err != nil {
			return nil, err
		}
		if w.End < w.Start {
			return nil, fmt.Errorf("words[%d] ends before it starts", i)
		}
	}

	language := r.Language
	if language == "" {
		language = requested
	}

	return &SpeechResult{
		Transcript: *r.Transcript,
		Words:      words,
		Language:   language,
		Confidence: confidence,
	}, nil
}
