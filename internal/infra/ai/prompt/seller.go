package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/bryanwahyu/invoice-audit/internal/domain/ai"
)

// maxGroups caps how many duplicate groups are sent per review
const maxGroups = 20

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior GST compliance auditor reviewing e-invoice activity of one seller. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- risk is one of: high, medium, normal.
- A credit-note-to-invoice ratio above 1.0, or credit notes with no invoices at all, is high risk unless the evidence clearly explains it.
- Repeated buyer/seller/date/number combinations are possible duplicate filings; mention them in findings.
- findings is an array of short strings; actions is an array of concrete follow-up checks.

Schema (example with empty values):
{
  "gstin": "<string>",
  "risk": "<high|medium|normal>",
  "findings": ["<string>"],
  "actions": ["<string>"],
  "summary": "<string>"
}`
}

// GetUserPrompt serialises the seller profile into the user message.
func GetUserPrompt(p ai.SellerProfile) (string, error) {
	if len(p.Duplicates) > maxGroups {
		p.Duplicates = p.Duplicates[:maxGroups]
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "marshal seller profile")
	}
	return fmt.Sprintf("Review seller %s from dataset %s and respond with the JSON per schema. Data: %s",
		p.Ratio.SellerGSTIN, p.DatasetID, b), nil
}

// Review matches the schema used by the system prompt.
type Review struct {
	GSTIN    string   `json:"gstin"`
	Risk     string   `json:"risk"`
	Findings []string `json:"findings"`
	Actions  []string `json:"actions"`
	Summary  string   `json:"summary"`
}

// ParseReview decodes a model answer, tolerating stray code fences.
func ParseReview(content string) (Review, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var r Review
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &r); err != nil {
		return Review{}, errors.Wrap(err, "decoding review json")
	}
	switch r.Risk {
	case "high", "medium", "normal":
	default:
		return Review{}, errors.Newf("review has unknown risk %q", r.Risk)
	}
	return r, nil
}
