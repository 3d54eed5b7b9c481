package capability

import (
	"context"
	"log"
	"time"
)

type videoRequest struct {
	VideoURL string `json:"video_url"`
}

type videoResponse struct {
	FaceLandmarks   map[string]interface{} `json:"face_landmarks"`
	EyeContactScore *float64               `json:"eye_contact_score"`
	SmileProb       *float64               `json:"smile_prob"`
	Expression      map[string]float64     `json:"expression"`
	Gaze            map[string]float64     `json:"gaze"`
	Timestamps      []Timestamp            `json:"timestamps"`
}

// VideoClient 面部与视线分析
type VideoClient struct {
	caller  *caller
	timeout time.Duration
}

// NewVideoClient 创建视频分析客户端
func NewVideoClient(baseURL string, timeout time.Duration) *VideoClient {
	return &VideoClient{caller: newCaller(baseURL), timeout: timeout}
}

// AnalyzeVideo 调用失败时返回兜底结果，不会返回错误
func (c *VideoClient) AnalyzeVideo(ctx context.Context, videoURL string) *VideoResult {
	var resp videoResponse
	if err := c.caller.postJSON(ctx, c.timeout, "/analyze/video", videoRequest{VideoURL: videoURL}, &resp); err != nil {
		log.Printf("Capability video: %v, using fallback", err)
		return FallbackVideo()
	}

	result, err := resp.toResult()
	if err != nil {
		log.Printf("Capability video: invalid response: %v, using fallback", err)
		return FallbackVideo()
	}
	return result
}

func (r *videoResponse) toResult() (*VideoResult, error) {
	eye, err := required("eye_contact_score", r.EyeContactScore)
	if err != nil {
		return nil, err
	}
	smile, err := required("smile_prob", r.SmileProb)
	if err != nil {
		return nil, err
	}

	fallback := FallbackVideo()
	result := &VideoResult{
		FaceLandmarks:   r.FaceLandmarks,
		EyeContactScore: eye,
		SmileProb:       smile,
		Expression:      r.Expression,
		Gaze:            r.Gaze,
		Timestamps:      r.Timestamps,
	}
	if result.FaceLandmarks == nil {
		result.FaceLandmarks = map[string]interface{}{}
	}
	if len(result.Expression) == 0 {
		result.Expression = fallback.Expression
	}
	if len(result.Gaze) == 0 {
		result.Gaze = fallback.Gaze
	}
	if result.Timestamps == nil {
		result.Timestamps = []Timestamp{}
	}
	for k, v := range result.Expression {
		if err := finite("expression."+k, v); err != nil {
			return nil, err
		}
	}
	for k, v := range result.Gaze {
		if err := finite("gaze."+k, v); err != nil {
			return nil, err
		}
	}
	return result, nil
}
