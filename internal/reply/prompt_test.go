package reply

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSystemPromptDefaults(t *testing.T) {
	prompt := BuildSystemPrompt(PromptOptions{})

	require.Contains(t, prompt, "Tone: Friendly, professional, and confident.")
	require.Contains(t, prompt, "Length: 4–6 sentences")
	require.Contains(t, prompt, `The reviewer's name is unknown. Do not invent a name.`)
	require.Contains(t, prompt, "Do not mention AI")
}

func TestBuildSystemPromptUnknownValuesFallBack(t *testing.T) {
	prompt := BuildSystemPrompt(PromptOptions{Tone: "sarcastic", Length: "novel"})

	require.Contains(t, prompt, "Tone: Friendly, professional, and confident.")
	require.Contains(t, prompt, "Length: 4–6 sentences")
}

func TestBuildSystemPromptSelectsToneAndLength(t *testing.T) {
	cases := []struct {
		tone     Tone
		length   Length
		wantTone string
		wantLen  string
	}{
		{ToneWarm, LengthShort, "Warm, grateful, and personable.", "2–3 sentences"},
		{ToneShortDirect, LengthMedium, "Short, direct, and professional.", "4–6 sentences"},
		{ToneEmpathetic, LengthLong, "Empathetic, calm, and solution-focused.", "7–10 sentences"},
	}

	for _, tc := range cases {
		prompt := BuildSystemPrompt(PromptOptions{Tone: tc.tone, Length: tc.length})
		require.Contains(t, prompt, "Tone: "+tc.wantTone)
		require.Contains(t, prompt, "Length: "+tc.wantLen)
	}
}

func TestBuildSystemPromptReviewerName(t *testing.T) {
	prompt := BuildSystemPrompt(PromptOptions{ReviewerName: "Sam"})
	require.Contains(t, prompt, `The reviewer's name is "Sam". Use it naturally once.`)

	// Whitespace-only names count as absent
	prompt = BuildSystemPrompt(PromptOptions{ReviewerName: "   "})
	require.Contains(t, prompt, "The reviewer's name is unknown.")
}
