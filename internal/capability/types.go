package capability

// Timestamp 视频中检测到的行为片段
type Timestamp struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Tag   string  `json:"tag"`
}

// VideoResult 面部/视线分析结果
type VideoResult struct {
	FaceLandmarks   map[string]interface{} `json:"face_landmarks"`
	EyeContactScore float64                `json:"eye_contact_score"`
	SmileProb       float64                `json:"smile_prob"`
	Expression      map[string]float64     `json:"expression"`
	Gaze            map[string]float64     `json:"gaze"`
	Timestamps      []Timestamp            `json:"timestamps"`
	Fallback        bool                   `json:"-"`
}

// Word 单词级时间戳
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// SpeechResult 语音转写结果
type SpeechResult struct {
	Transcript string  `json:"transcript"`
	Words      []Word  `json:"words"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Fallback   bool    `json:"-"`
}

// AudioResult 音频韵律分析结果
type AudioResult struct {
	PitchMean    float64 `json:"pitch_mean"`
	PitchVar     float64 `json:"pitch_var"`
	EnergyMean   float64 `json:"energy_mean"`
	SpeakingRate float64 `json:"speaking_rate"`
	ToneLabel    string  `json:"tone_label"`
	ProsodyScore float64 `json:"prosody_score"`
	Fallback     bool    `json:"-"`
}

const unableToDetermine = "unable_to_determine"

// FallbackVideo 视频服务不可用时的保守结果
func FallbackVideo() *VideoResult {
	return &VideoResult{
		FaceLandmarks:   map[string]interface{}{"status": unableToDetermine},
		EyeContactScore: 0.5,
		SmileProb:       0.3,
		Expression:      map[string]float64{"neutral": 1.0},
		Gaze:            map[string]float64{"left": 0.33, "center": 0.34, "right": 0.33},
		Timestamps:      []Timestamp{},
		Fallback:        true,
	}
}

// FallbackSpeech 转写服务不可用时的保守结果
func FallbackSpeech(language string) *SpeechResult {
	return &SpeechResult{
		Transcript: "",
		Words:      []Word{},
		Language:   language,
		Confidence: 0,
		Fallback:   true,
	}
}

// FallbackAudio 音频服务不可用时的保守结果
func FallbackAudio() *AudioResult {
	return &AudioResult{
		ToneLabel:    unableToDetermine,
		ProsodyScore: 0.5,
		Fallback:     true,
	}
}
