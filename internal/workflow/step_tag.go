package workflow

import "regexp"

var stepTagRe = regexp.MustCompile(`^\[STEP:\s*([A-Za-z0-9_\-]+)\]\s*`)

// ParseStepTag extracts a leading step tag from an LLM response, if
// present, and returns the response text with the tag stripped. The regex
// is anchored at the start of the string per §9's "strict regex anchored
// at message start".
func ParseStepTag(text string) (nodeID string, stripped string, ok bool) {
	loc := stepTagRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text, false
	}
	nodeID = text[loc[2]:loc[3]]
	stripped = text[loc[1]:]
	return nodeID, stripped, true
}
