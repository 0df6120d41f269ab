package types

// Event represents a typed state change emitted by the credit engine. The
// attribute map carries stringified payload fields so downstream indexers can
// consume events without decoding module-specific structs.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
