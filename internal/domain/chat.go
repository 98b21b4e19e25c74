package domain

// ChatMessage is ephemeral at the core: broadcast once, never stored.
type ChatMessage struct {
	From ConnID `json:"from"`
	Name string `json:"name"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}
