package record

import "strings"

// DefaultRejected is the built-in default for the configured rejected response.
// It means "I don't know".
const DefaultRejected = "我不知道"

// Role is the sender of a message in a canonical record.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole normalizes a loosely-typed role value. Matching is case-insensitive
// and ignores surrounding whitespace; "human" is an alias for user. Anything
// else, including non-string values, reports false.
func ParseRole(v any) (Role, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return RoleSystem, true
	case "user", "human":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	default:
		return "", false
	}
}

// Message is a single role-tagged turn.
type Message struct {
	Role    Role   `json:"role" jsonschema:"enum=system,enum=user,enum=assistant"`
	Content string `json:"content"`
}

// Record is the canonical output unit. Messages is never empty.
type Record struct {
	Messages         []Message `json:"messages" jsonschema:"minItems=1"`
	RejectedResponse string    `json:"rejected_response"`
}

// Mapping holds the optional field-mapping overrides for a whole run.
type Mapping struct {
	UserField       string
	ChosenField     string
	RejectField     string
	SystemText      string
	DefaultRejected string
}

// Active reports whether mapping mode applies. Any one configured field name is
// enough, whether or not the others are set.
func (m Mapping) Active() bool {
	return m.UserField != "" || m.ChosenField != "" || m.RejectField != ""
}
