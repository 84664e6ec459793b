package toolgateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ExplicitCommand is a parsed "/tool <name> <json>" utterance.
type ExplicitCommand struct {
	ToolName string
	Args     map[string]any
}

// DefaultPrefix is the slash-command prefix recognized when a call doesn't
// configure its own.
const DefaultPrefix = "/tool"

// ParseExplicitCommand parses a raw utterance against prefix, returning
// ok=false when the utterance doesn't start with the prefix at all (so the
// caller falls through to the implicit LLM tool-choice path instead of
// failing the turn).
func ParseExplicitCommand(prefix, utterance string) (cmd ExplicitCommand, ok bool, err error) {
	trimmed := strings.TrimSpace(utterance)
	if !strings.HasPrefix(trimmed, prefix) {
		return ExplicitCommand{}, false, nil
	}

	rest := strings.TrimSpace(trimmed[len(prefix):])
	parts := strings.SplitN(rest, " ", 2)
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return ExplicitCommand{}, true, fmt.Errorf("toolgateway: missing tool name after %q", prefix)
	}
	if !toolNamePattern.MatchString(name) {
		return ExplicitCommand{}, true, fmt.Errorf("toolgateway: invalid tool name %q", name)
	}

	args := map[string]any{}
	if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
		if err := json.Unmarshal([]byte(parts[1]), &args); err != nil {
			return ExplicitCommand{}, true, fmt.Errorf("toolgateway: invalid json arguments: %w", err)
		}
	}

	return ExplicitCommand{ToolName: name, Args: args}, true, nil
}
