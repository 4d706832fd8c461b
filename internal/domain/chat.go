package domain

// ChatTurn is one caller-supplied turn of conversation context. Turns are
// ephemeral; the service keeps only a short sliding window and never persists them.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
