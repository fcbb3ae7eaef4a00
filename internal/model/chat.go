package model

// ChatMessage は会話履歴の1メッセージ。
// Roleは "system"、"user"、"assistant" のいずれか。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
