package handlers

import (
	"encoding/json"
	"regexp"
	"strings"

	"fitcoach/pkg/proto"
)

// fencedJSON matches ```json ... ``` blocks (and bare ``` fences as a
// fallback, since models sometimes drop the language tag).
//
//nolint:gochecknoglobals // Compiled once
var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractSaveRequest pulls the first well-formed save block out of a model
// reply. The block is removed from the conversational content either way; a
// malformed block is dropped rather than surfaced to the user.
func extractSaveRequest(content string) (string, *proto.SaveRequest) {
	matches := fencedJSON.FindStringSubmatch(content)
	if matches == nil {
		return content, nil
	}

	cleaned := strings.TrimSpace(strings.Replace(content, matches[0], "", 1))

	var save proto.SaveRequest
	if err := json.Unmarshal([]byte(matches[1]), &save); err != nil {
		return cleaned, nil
	}
	if err := save.Validate(); err != nil {
		return cleaned, nil
	}
	return cleaned, &save
}
