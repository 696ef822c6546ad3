// Package reply builds review-response prompts and drives the LLM to produce
// the final reply text.
package reply

import (
	"fmt"
	"strings"
)

// Tone selects the voice of the generated reply.
type Tone string

// Supported tones. Unknown values fall back to DefaultTone.
const (
	ToneFriendlyProfessional Tone = "friendly-professional"
	ToneWarm                 Tone = "warm"
	ToneShortDirect          Tone = "short-direct"
	ToneEmpathetic           Tone = "empathetic"

	DefaultTone = ToneFriendlyProfessional
)

// Length selects the target size of the generated reply.
type Length string

// Supported lengths. Unknown values fall back to DefaultLength.
const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"

	DefaultLength = LengthMedium
)

var toneStyles = map[Tone]string{
	ToneFriendlyProfessional: "Friendly, professional, and confident.",
	ToneWarm:                 "Warm, grateful, and personable.",
	ToneShortDirect:          "Short, direct, and professional.",
	ToneEmpathetic:           "Empathetic, calm, and solution-focused.",
}

var lengthTargets = map[Length]string{
	LengthShort:  "2–3 sentences",
	LengthMedium: "4–6 sentences",
	LengthLong:   "7–10 sentences",
}

const systemPromptTemplate = `You write public responses to customer reviews for a home services business.
Tone: %s
Length: %s
%s

Rules:
- Thank them sincerely.
- Reference a specific detail from the review (don’t copy it word-for-word).
- Reinforce trust signals (professionalism, punctuality, clean work, clear communication).
- If the review is negative: apologize, stay calm, and offer a next step to resolve offline.
- End with an invitation to contact you again.
- Do not mention AI or that this was generated.`

// PromptOptions carries the caller-selected knobs for the system prompt.
// Zero values are valid and resolve to the defaults.
type PromptOptions struct {
	Tone         Tone
	Length       Length
	ReviewerName string
}

// BuildSystemPrompt renders the system prompt for the given options.
func BuildSystemPrompt(opts PromptOptions) string {
	style, ok := toneStyles[opts.Tone]
	if !ok {
		style = toneStyles[DefaultTone]
	}

	target, ok := lengthTargets[opts.Length]
	if !ok {
		target = lengthTargets[DefaultLength]
	}

	name := strings.TrimSpace(opts.ReviewerName)
	nameLine := `The reviewer's name is unknown. Do not invent a name.`
	if name != "" {
		nameLine = fmt.Sprintf("The reviewer's name is %q. Use it naturally once.", name)
	}

	return fmt.Sprintf(systemPromptTemplate, style, target, nameLine)
}
