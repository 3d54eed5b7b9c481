package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/chirp_analysis/internal/capability"
)

// wordsWithGaps 依次按给定停顿生成单词，每个词持续 0.2 秒
func wordsWithGaps(gaps []float64) []capability.Word {
	words := []capability.Word{{Word: "w0", Start: 0, End: 0.2, Confidence: 0.9}}
	for i, gap := range gaps {
		start := words[i].End + gap
		words = append(words, capability.Word{Word: "w", Start: start, End: start + 0.2, Confidence: 0.9})
	}
	return words
}

func inputs(eye, smile, prosody, rate float64, words []capability.Word, transcript string) (*capability.VideoResult, *capability.SpeechResult, *capability.AudioResult) {
	video := &capability.VideoResult{EyeContactScore: eye, SmileProb: smile}
	speech := &capability.SpeechResult{Transcript: transcript, Words: words}
	audio := &capability.AudioResult{ProsodyScore: prosody, SpeakingRate: rate}
	return video, speech, audio
}

func assertBounded(t *testing.T, a *Assessment) {
	t.Helper()
	for name, v := range map[string]float64{
		"eye_contact":      a.EyeContact,
		"speech_clarity":   a.SpeechClarity,
		"prosody_score":    a.ProsodyScore,
		"engagement_level": a.EngagementLevel,
		"turn_taking":      a.TurnTaking,
		"overall_score":    a.OverallScore,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
}

func TestAggregate_ScoresBounded(t *testing.T) {
	tests := []struct {
		name                      string
		eye, smile, prosody, rate float64
		confidence                float64
	}{
		{name: "typical", eye: 0.6, smile: 0.5, prosody: 0.7, rate: 120, confidence: 0.9},
		{name: "above one", eye: 1.7, smile: 3, prosody: 2.5, rate: 500, confidence: 4},
		{name: "negative", eye: -1, smile: -0.2, prosody: -3, rate: -10, confidence: -1},
		{name: "not a number", eye: math.NaN(), smile: math.NaN(), prosody: math.NaN(), rate: math.NaN(), confidence: math.NaN()},
		{name: "infinite", eye: math.Inf(1), smile: math.Inf(-1), prosody: math.Inf(1), rate: math.Inf(1), confidence: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words := wordsWithGaps([]float64{0.1, 1.0, 0.7})
			for i := range words {
				words[i].Confidence = tt.confidence
			}
			video, speech, audio := inputs(tt.eye, tt.smile, tt.prosody, tt.rate, words, "hello there my friend")

			a := Aggregate(video, speech, audio, nil)
			assertBounded(t, a)
		})
	}
}

func TestAggregate_UnweightedMeanWithoutRubric(t *testing.T) {
	video, speech, audio := inputs(0.8, 0.5, 0.6, 120, wordsWithGaps([]float64{0.1}), "hello there friend")

	a := Aggregate(video, speech, audio, nil)

	mean := (a.EyeContact + a.SpeechClarity + a.ProsodyScore + a.EngagementLevel) / 4
	assert.InDelta(t, mean, a.OverallScore, 1e-12)
	assert.InDelta(t, 0.8, a.EyeContact, 1e-12)
	assert.InDelta(t, (0.9+1.0)/2, a.SpeechClarity, 1e-12)
	assert.InDelta(t, 0.6, a.ProsodyScore, 1e-12)
	assert.InDelta(t, 0.4*0.5+0.6*0.8, a.EngagementLevel, 1e-12)
}

func TestAggregate_EmptyWordsClarity(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want float64
	}{
		{name: "rate in band", rate: 120, want: (0.5 + 1.0) / 2},
		{name: "rate too slow", rate: 60, want: (0.5 + 0.7) / 2},
		{name: "lower bound excluded", rate: 80, want: (0.5 + 0.7) / 2},
		{name: "upper bound excluded", rate: 180, want: (0.5 + 0.7) / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video, speech, audio := inputs(0.5, 0.5, 0.5, tt.rate, []capability.Word{}, "long enough transcript")
			a := Aggregate(video, speech, audio, nil)
			assert.InDelta(t, tt.want, a.SpeechClarity, 1e-12)
		})
	}
}

func TestTurnTaking(t *testing.T) {
	t.Run("gap example", func(t *testing.T) {
		words := wordsWithGaps([]float64{0.4, 0.9, 2.0, 3.5})
		require.Len(t, words, 5)
		assert.Equal(t, 2, countPauses(words))
		// 5 个词按 max(1, 0.5) = 1 归一后截断到 1
		assert.Equal(t, 1.0, TurnTaking(words))
	})

	t.Run("gap example padded with short gaps", func(t *testing.T) {
		gaps := []float64{0.4, 0.9, 2.0, 3.5}
		for i := 0; i < 16; i++ {
			gaps = append(gaps, 0.2)
		}
		words := wordsWithGaps(gaps)
		require.Len(t, words, 21)
		assert.Equal(t, 2, countPauses(words))
		assert.InDelta(t, 2/2.1, TurnTaking(words), 1e-12)
	})

	t.Run("endpoints excluded", func(t *testing.T) {
		words := []capability.Word{
			{Word: "a", Start: 0, End: 0.5},
			{Word: "b", Start: 1.0, End: 1.5},
			{Word: "c", Start: 4.5, End: 5.0},
		}
		assert.Equal(t, 0, countPauses(words))
	})

	t.Run("normalized by word count", func(t *testing.T) {
		gaps := make([]float64, 19)
		for i := range gaps {
			gaps[i] = 0.1
		}
		gaps[5] = 1.0
		words := wordsWithGaps(gaps)
		require.Len(t, words, 20)
		assert.InDelta(t, 0.5, TurnTaking(words), 1e-12)
	})

	t.Run("bounds excluded", func(t *testing.T) {
		words := []capability.Word{
			{Start: 0, End: 1},
			{Start: 1.5, End: 2},
			{Start: 5, End: 6},
		}
		assert.Equal(t, 0.0, TurnTaking(words))
	})

	t.Run("too few words", func(t *testing.T) {
		assert.Equal(t, 0.0, TurnTaking(nil))
		assert.Equal(t, 0.0, TurnTaking([]capability.Word{{Start: 0, End: 1}}))
	})
}

func TestAggregate_AllFallbacks(t *testing.T) {
	a := Aggregate(capability.FallbackVideo(), capability.FallbackSpeech("en"), capability.FallbackAudio(), nil)

	assert.InDelta(t, 0.5, a.EyeContact, 1e-12)
	assert.InDelta(t, 0.6, a.SpeechClarity, 1e-12)
	assert.InDelta(t, 0.5, a.ProsodyScore, 1e-12)
	assert.InDelta(t, 0.42, a.EngagementLevel, 1e-12)
	assert.InDelta(t, 0.505, a.OverallScore, 1e-12)
	assert.Equal(t, 0.0, a.TurnTaking)
	assert.Contains(t, a.Feedback.Suggestions, SuggestionLongerResponses)
}

func TestAggregate_NilInputsUseFallbacks(t *testing.T) {
	a := Aggregate(nil, nil, nil, nil)
	assert.InDelta(t, 0.505, a.OverallScore, 1e-12)
}

func TestAggregate_RubricWeights(t *testing.T) {
	rubric, err := ParseRubric([]byte(`{"weights":{"eye_contact":2,"speech_clarity":0,"prosody":0,"engagement":0}}`))
	require.NoError(t, err)

	video, speech, audio := inputs(0.9, 0.1, 0.2, 120, nil, "long enough transcript")
	a := Aggregate(video, speech, audio, rubric)

	assert.InDelta(t, 0.9, a.OverallScore, 1e-12)
}

func TestAggregate_RubricRateBand(t *testing.T) {
	rubric, err := ParseRubric([]byte(`{"speaking_rate":{"min":40,"max":90}}`))
	require.NoError(t, err)

	video, speech, audio := inputs(0.5, 0.5, 0.5, 60, nil, "long enough transcript")

	assert.InDelta(t, 0.75, Aggregate(video, speech, audio, rubric).SpeechClarity, 1e-12)
	assert.InDelta(t, 0.6, Aggregate(video, speech, audio, nil).SpeechClarity, 1e-12)
}

func TestAggregate_ShortTranscriptSuggestion(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       bool
	}{
		{name: "empty", transcript: "", want: true},
		{name: "short", transcript: "hi mom", want: true},
		{name: "padded short", transcript: "   hello    ", want: true},
		{name: "multibyte short", transcript: "你好你好你好", want: true},
		{name: "exactly ten", transcript: "abcdefghij", want: false},
		{name: "long", transcript: "I like playing with my dog", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 各项分数都很高，建议只可能来自转写长度
			video, speech, audio := inputs(1, 1, 1, 120, wordsWithGaps([]float64{1.0}), tt.transcript)
			a := Aggregate(video, speech, audio, nil)

			if tt.want {
				assert.Contains(t, a.Feedback.Suggestions, SuggestionLongerResponses)
			} else {
				assert.NotContains(t, a.Feedback.Suggestions, SuggestionLongerResponses)
			}
		})
	}
}

func TestAggregate_Feedback(t *testing.T) {
	t.Run("strong session", func(t *testing.T) {
		video, speech, audio := inputs(0.9, 0.9, 0.9, 120, wordsWithGaps([]float64{1.0}), "I went to the park today")
		fb := Aggregate(video, speech, audio, nil).Feedback

		assert.Len(t, fb.Strengths, 4)
		assert.Empty(t, fb.Improvements)
		assert.Empty(t, fb.Suggestions)
	})

	t.Run("eye contact has its own threshold", func(t *testing.T) {
		// 0.45 低于其它指标的 0.5 阈值，但高于眼神的 0.4 阈值
		video, speech, audio := inputs(0.45, 0.9, 0.9, 120, wordsWithGaps([]float64{1.0}), "I went to the park today")
		fb := Aggregate(video, speech, audio, nil).Feedback

		assert.NotContains(t, fb.Improvements, eyeContactPhrases.improvement)
	})

	t.Run("weak session", func(t *testing.T) {
		video, speech, audio := inputs(0.1, 0.0, 0.2, 120, wordsWithGaps([]float64{1.0}), "I went to the park today")
		fb := Aggregate(video, speech, audio, nil).Feedback

		assert.Contains(t, fb.Improvements, eyeContactPhrases.improvement)
		assert.Contains(t, fb.Improvements, prosodyPhrases.improvement)
		assert.Contains(t, fb.Improvements, engagementPhrases.improvement)
		assert.Contains(t, fb.Suggestions, eyeContactPhrases.suggestion)
		assert.Equal(t, len(fb.Improvements), len(fb.Suggestions))
	})

	t.Run("rubric thresholds", func(t *testing.T) {
		rubric, err := ParseRubric([]byte(`{"thresholds":{"strength":0.95}}`))
		require.NoError(t, err)

		video, speech, audio := inputs(0.9, 0.9, 0.9, 120, wordsWithGaps([]float64{1.0}), "I went to the park today")
		fb := Aggregate(video, speech, audio, rubric).Feedback
		assert.Empty(t, fb.Strengths)
	})
}

func TestAssessment_JSONDeterministic(t *testing.T) {
	video, speech, audio := inputs(0.3, 0.2, 0.4, 60, nil, "ok")

	first, err := Aggregate(video, speech, audio, nil).JSON()
	require.NoError(t, err)
	second, err := Aggregate(video, speech, audio, nil).JSON()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"strengths":[]`)
	assert.True(t, strings.HasPrefix(string(first), `{"eye_contact":0.3,`))
}

func TestAssessment_Metric(t *testing.T) {
	a := &Assessment{EyeContact: 0.1, SpeechClarity: 0.2, OverallScore: 0.3}

	for name, want := range map[string]float64{"": 0.3, "overall": 0.3, "eye_contact": 0.1, "speech_clarity": 0.2} {
		got, err := a.Metric(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := a.Metric("volume")
	assert.Error(t, err)
}
