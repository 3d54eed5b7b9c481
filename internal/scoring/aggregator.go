package scoring

import (
	"math"

	"github.com/qs3c/chirp_analysis/internal/capability"
)

const (
	emptyWordConfidence = 0.5
	inBandRateScore     = 1.0
	outOfBandRateScore  = 0.7

	minNaturalPause = 0.5
	maxNaturalPause = 3.0
)

// Aggregate 将三项分析结果合成一份评估，rubric 为 nil 时使用默认规则
func Aggregate(video *capability.VideoResult, speech *capability.SpeechResult, audio *capability.AudioResult, rubric *Rubric) *Assessment {
	if rubric == nil {
		rubric = DefaultRubric()
	}
	if video == nil {
		video = capability.FallbackVideo()
	}
	if speech == nil {
		speech = capability.FallbackSpeech("")
	}
	if audio == nil {
		audio = capability.FallbackAudio()
	}

	eyeContact := Clamp(video.EyeContactScore)
	speechClarity := Clamp((averageConfidence(speech.Words) + rateBandScore(audio.SpeakingRate, rubric.RateBand)) / 2)
	prosody := Clamp(audio.ProsodyScore)
	engagement := Clamp(0.4*Clamp(video.SmileProb) + 0.6*eyeContact)

	w := rubric.Weights.normalized()
	overall := Clamp(w.EyeContact*eyeContact +
		w.SpeechClarity*speechClarity +
		w.Prosody*prosody +
		w.Engagement*engagement)

	a := &Assessment{
		EyeContact:      eyeContact,
		SpeechClarity:   speechClarity,
		ProsodyScore:    prosody,
		EngagementLevel: engagement,
		TurnTaking:      TurnTaking(speech.Words),
		OverallScore:    overall,
		Transcript:      speech.Transcript,
	}
	a.Feedback = buildFeedback(a, rubric.Thresholds)
	return a
}

// Clamp 限制到 [0,1]，NaN 视为 0
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func averageConfidence(words []capability.Word) float64 {
	if len(words) == 0 {
		return emptyWordConfidence
	}
	var total float64
	for _, w := range words {
		total += w.Confidence
	}
	return total / float64(len(words))
}

func rateBandScore(rate float64, band RateBand) float64 {
	if band.contains(rate) {
		return inBandRateScore
	}
	return outOfBandRateScore
}

// TurnTaking 统计 0.5s~3.0s（不含端点）的自然停顿，按每十个词归一
func TurnTaking(words []capability.Word) float64 {
	if len(words) < 2 {
		return 0
	}
	return Clamp(float64(countPauses(words)) / math.Max(1, float64(len(words))/10))
}

func countPauses(words []capability.Word) int {
	pauses := 0
	for i := 1; i < len(words); i++ {
		gap := words[i].Start - words[i-1].End
		if gap > minNaturalPause && gap < maxNaturalPause {
			pauses++
		}
	}
	return pauses
}
