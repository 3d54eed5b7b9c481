package scoring

import (
	"strings"
	"unicode/utf8"
)

const minTranscriptRunes = 10

// SuggestionLongerResponses 转写过短时追加的建议
const SuggestionLongerResponses = "Encourage longer responses by asking open-ended questions"

type phrases struct {
	strength    string
	improvement string
	suggestion  string
}

var (
	eyeContactPhrases = phrases{
		strength:    "Great eye contact throughout the conversation",
		improvement: "Eye contact was limited",
		suggestion:  "Practice looking at the listener's face while talking",
	}
	clarityPhrases = phrases{
		strength:    "Spoke clearly and at a comfortable pace",
		improvement: "Speech was sometimes hard to understand",
		suggestion:  "Try speaking a little slower and pronouncing each word",
	}
	prosodyPhrases = phrases{
		strength:    "Used an expressive, natural voice",
		improvement: "Voice tone stayed quite flat",
		suggestion:  "Play games that use happy, sad and surprised voices",
	}
	engagementPhrases = phrases{
		strength:    "Stayed engaged and friendly",
		improvement: "Engagement dropped during the conversation",
		suggestion:  "Smile and nod to show you are listening",
	}
)

func buildFeedback(a *Assessment, t Thresholds) Feedback {
	fb := Feedback{
		Strengths:    []string{},
		Improvements: []string{},
		Suggestions:  []string{},
	}

	check := func(score, improveBelow float64, p phrases) {
		if score > t.Strength {
			fb.Strengths = append(fb.Strengths, p.strength)
		}
		if score < improveBelow {
			fb.Improvements = append(fb.Improvements, p.improvement)
			fb.Suggestions = append(fb.Suggestions, p.suggestion)
		}
	}

	check(a.EyeContact, t.EyeContactImprovement, eyeContactPhrases)
	check(a.SpeechClarity, t.Improvement, clarityPhrases)
	check(a.ProsodyScore, t.Improvement, prosodyPhrases)
	check(a.EngagementLevel, t.Improvement, engagementPhrases)

	if utf8.RuneCountInString(strings.TrimSpace(a.Transcript)) < minTranscriptRunes {
		fb.Suggestions = append(fb.Suggestions, SuggestionLongerResponses)
	}
	return fb
}
