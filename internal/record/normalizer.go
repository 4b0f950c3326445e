package record

// Normalizer converts raw JSON values into canonical records.
type Normalizer struct {
	mapping         Mapping
	defaultRejected string
}

// NewNormalizer creates a normalizer for one run. m.DefaultRejected is used as
// given, including the empty string.
func NewNormalizer(m Mapping) *Normalizer {
	return &Normalizer{mapping: m, defaultRejected: m.DefaultRejected}
}

// Mapping returns the configuration the normalizer was built with.
func (n *Normalizer) Mapping() Mapping {
	return n.mapping
}

// Normalize converts one raw value. It reports false when the value is not
// convertible; that is a skip, never an error. The raw value is not modified.
func (n *Normalizer) Normalize(raw any) (Record, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Record{}, false
	}

	// Mapping mode never falls back to shape detection.
	if n.mapping.Active() {
		return n.fromMapping(obj)
	}

	msgs := detectMessages(obj)
	if len(msgs) == 0 {
		return Record{}, false
	}
	return Record{
		Messages:         msgs,
		RejectedResponse: n.rejected(obj["rejected_response"]),
	}, true
}

func (n *Normalizer) fromMapping(obj map[string]any) (Record, bool) {
	userText, ok := lookupString(obj, n.mapping.UserField)
	if !ok {
		return Record{}, false
	}
	chosenText, ok := lookupString(obj, n.mapping.ChosenField)
	if !ok {
		return Record{}, false
	}

	msgs := make([]Message, 0, 3)
	if n.mapping.SystemText != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: n.mapping.SystemText})
	}
	msgs = append(msgs,
		Message{Role: RoleUser, Content: userText},
		Message{Role: RoleAssistant, Content: chosenText},
	)

	var reject any
	if n.mapping.RejectField != "" {
		reject = obj[n.mapping.RejectField]
	}
	return Record{Messages: msgs, RejectedResponse: n.rejected(reject)}, true
}

func (n *Normalizer) rejected(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return n.defaultRejected
}

// detectMessages tries the known shapes in order. The first shape whose
// container is present decides the outcome, even when it yields nothing.
func detectMessages(obj map[string]any) []Message {
	if list, ok := obj["messages"].([]any); ok {
		return fromMessageList(list)
	}
	if list, ok := conversationList(obj); ok {
		return fromConversationList(list)
	}
	return fromFlatKeys(obj)
}

// fromMessageList handles [{"role": ..., "content": ...}].
func fromMessageList(list []any) []Message {
	var msgs []Message
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, ok := ParseRole(m["role"])
		if !ok {
			continue
		}
		content, ok := m["content"].(string)
		if !ok {
			continue
		}
		msgs = append(msgs, Message{Role: role, Content: content})
	}
	return msgs
}

// conversationList returns "conversations", or "conversation" when the former
// is empty: missing, null, false, zero, "" or an empty list or object. Only a
// list selects the conversation shape.
func conversationList(obj map[string]any) ([]any, bool) {
	v := obj["conversations"]
	if isEmpty(v) {
		v = obj["conversation"]
	}
	list, ok := v.([]any)
	return list, ok
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// fromConversationList handles ShareGPT-style turns: {"from"|"role", "value"|"content"}.
func fromConversationList(list []any) []Message {
	var msgs []Message
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, ok := ParseRole(m["role"])
		if !ok {
			role, ok = ParseRole(m["from"])
		}
		if !ok {
			continue
		}
		content, ok := m["content"].(string)
		if !ok {
			content, ok = m["value"].(string)
		}
		if !ok {
			continue
		}
		msgs = append(msgs, Message{Role: role, Content: content})
	}
	return msgs
}

var flatKeyOrder = []Role{RoleSystem, RoleUser, RoleAssistant}

// fromFlatKeys handles {"system": ..., "user": ..., "assistant": ...}. Output
// order is fixed regardless of key order in the source.
func fromFlatKeys(obj map[string]any) []Message {
	var msgs []Message
	for _, role := range flatKeyOrder {
		if s, ok := obj[string(role)].(string); ok {
			msgs = append(msgs, Message{Role: role, Content: s})
		}
	}
	return msgs
}

func lookupString(obj map[string]any, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	s, ok := obj[key].(string)
	return s, ok
}
