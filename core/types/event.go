package types

// Event is a log record: a dotted type such as "bridge.swap_in" and flat
// string attributes. Amounts are rendered in base 10.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute stored under key, or "" when absent.
func (e Event) Attr(key string) string { return e.Attributes[key] }

// Namespace is the contract family prefix of the record type.
func (e Event) Namespace() string {
	for i := 0; i < len(e.Type); i++ {
		if e.Type[i] == '.' {
			return e.Type[:i]
		}
	}
	return e.Type
}
