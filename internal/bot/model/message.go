package model

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// ChatMessage is a single entry in a conversation history.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CustomerMessage builds a customer-authored message stamped with now.
func CustomerMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleCustomer, Text: text, Timestamp: time.Now()}
}

// AgentMessage builds an agent-authored message stamped with now.
func AgentMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleAgent, Text: text, Timestamp: time.Now()}
}
