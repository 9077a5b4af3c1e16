package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// parseResponse interprets a provider reply. JSON is the contracted format;
// a labeled plain-text fallback recovers replies from providers that ignore
// the formatting instruction.
func parseResponse(content string) (Response, error) {
	content = cleanMarkdownWrapper(content)

	if resp, err := parseJSONResponse(content); err == nil {
		return resp, nil
	}

	return parseLabeledResponse(content)
}

func parseJSONResponse(content string) (Response, error) {
	var jsonResp struct {
		TaxCategory string  `json:"tax_category"`
		RefundBasis string  `json:"refund_basis"`
		Methodology string  `json:"methodology"`
		Decision    string  `json:"decision"`
		Confidence  float64 `json:"confidence"`
		Citation    string  `json:"citation"`
		Reasoning   string  `json:"reasoning"`
	}

	if err := json.Unmarshal([]byte(content), &jsonResp); err != nil {
		return Response{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if jsonResp.TaxCategory == "" && jsonResp.Decision == "" {
		return Response{}, fmt.Errorf("no classification fields in response")
	}

	return Response{
		TaxCategory: jsonResp.TaxCategory,
		RefundBasis: jsonResp.RefundBasis,
		Methodology: jsonResp.Methodology,
		Decision:    jsonResp.Decision,
		Confidence:  clampConfidence(jsonResp.Confidence),
		Citation:    jsonResp.Citation,
		Reasoning:   jsonResp.Reasoning,
	}, nil
}

func parseLabeledResponse(content string) (Response, error) {
	var resp Response
	found := false

	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "TAX_CATEGORY:"):
			resp.TaxCategory = strings.TrimSpace(strings.TrimPrefix(line, "TAX_CATEGORY:"))
			found = true
		case strings.HasPrefix(line, "REFUND_BASIS:"):
			resp.RefundBasis = strings.TrimSpace(strings.TrimPrefix(line, "REFUND_BASIS:"))
		case strings.HasPrefix(line, "METHODOLOGY:"):
			resp.Methodology = strings.TrimSpace(strings.TrimPrefix(line, "METHODOLOGY:"))
		case strings.HasPrefix(line, "DECISION:"):
			resp.Decision = strings.TrimSpace(strings.TrimPrefix(line, "DECISION:"))
			found = true
		case strings.HasPrefix(line, "CONFIDENCE:"):
			confStr := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			confStr = strings.TrimSuffix(confStr, "%")
			if conf, err := strconv.ParseFloat(confStr, 64); err == nil {
				resp.Confidence = clampConfidence(conf)
			}
		case strings.HasPrefix(line, "CITATION:"):
			resp.Citation = strings.TrimSpace(strings.TrimPrefix(line, "CITATION:"))
		case strings.HasPrefix(line, "REASONING:"):
			resp.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}

	if !found {
		return Response{}, fmt.Errorf("unable to parse classification response")
	}

	return resp, nil
}

// clampConfidence normalizes provider confidence to the 0-100 integer scale.
// Fractional replies (0.92) are treated as ratios.
func clampConfidence(conf float64) int {
	if conf > 0 && conf <= 1 {
		conf *= 100
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}
	return int(conf + 0.5)
}

// cleanMarkdownWrapper strips a ```json fence when a provider wraps its reply
// despite instructions.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	return strings.TrimSpace(content)
}
