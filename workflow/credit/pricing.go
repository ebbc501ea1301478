package credit

import "math"

// TokensPerCredit converts LLM token volume to credits: one credit per 100
// tokens of combined input and output, rounded up.
const TokensPerCredit = 100

// modelMultipliers scales LLM credit cost by model family. Pricing reflects
// relative per-token cost across providers; unknown models use 1.0.
var modelMultipliers = map[string]float64{
	// OpenAI
	"gpt-4o":      1.0,
	"gpt-4o-mini": 0.25,
	"gpt-4.1":     1.0,
	"o3":          2.0,

	// Anthropic
	"claude-sonnet-4-20250514": 1.0,
	"claude-opus-4-20250514":   3.0,
	"claude-3-5-haiku-latest":  0.25,

	// Google
	"gemini-2.0-flash": 0.2,
	"gemini-1.5-pro":   1.0,
}

// CalculateLLMCredits converts token usage to credits for a model.
//
// Base cost is ceil((input+output)/TokensPerCredit); the model multiplier is
// applied on top and the result rounded up, with a floor of 1 when any tokens
// were consumed.
func CalculateLLMCredits(model string, inputTokens, outputTokens int64) int64 {
	total := inputTokens + outputTokens
	if total <= 0 {
		return 0
	}
	base := math.Ceil(float64(total) / float64(TokensPerCredit))
	mult, ok := modelMultipliers[model]
	if !ok {
		mult = 1.0
	}
	credits := int64(math.Ceil(base * mult))
	if credits < 1 {
		credits = 1
	}
	return credits
}

// nodeTypeCredits is the flat per-execution cost of each node type when the
// executor reports neither token usage nor an explicit cost override.
var nodeTypeCredits = map[string]int64{
	"input":          0,
	"output":         0,
	"conditional":    0,
	"switch":         0,
	"loop":           0,
	"waitForUser":    0,
	"transform":      1,
	"fileOperations": 1,
	"http":           2,
	"database":       2,
	"vision":         5,
	"llm":            10,
	"agent":          10,
}

// CalculateNodeCredits returns the default credit cost for one execution of
// the given node type. Unknown types cost 1.
func CalculateNodeCredits(nodeType string) int64 {
	if cost, ok := nodeTypeCredits[nodeType]; ok {
		return cost
	}
	return 1
}
