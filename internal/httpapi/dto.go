package httpapi

import "time"

type verifyRequest struct {
	Challenge string `json:"challenge" binding:"required"`
	ChatID    string `json:"chat_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	User      string `json:"user" binding:"required"`
	ChainType string `json:"chain_type"`
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type subjectShare struct {
	SubjectAddress string `json:"subject_address"`
	SharesAmount   string `json:"shares_amount"`
}

type userSharesResponse struct {
	UserAddress string         `json:"user_address"`
	Shares      []subjectShare `json:"shares"`
	ChainType   string         `json:"chain_type"`
}

type addBotRequest struct {
	BotToken       string `json:"bot_token" binding:"required"`
	ChatGroupID    string `json:"chat_group_id" binding:"required"`
	SubjectAddress string `json:"subject_address" binding:"required"`
	AgentName      string `json:"agent_name" binding:"required"`
	InviteURL      string `json:"invite_url" binding:"required"`
	Bio            string `json:"bio"`
	ChainType      string `json:"chain_type"`
}

type agentSummary struct {
	AgentName      string    `json:"agent_name"`
	SubjectAddress string    `json:"subject_address"`
	CreatedAt      time.Time `json:"created_at"`
}

type agentListResponse struct {
	Agents   []agentSummary `json:"agents"`
	Total    int64          `json:"total"`
	Page     int64          `json:"page"`
	PageSize int64          `json:"page_size"`
}

type agentResponse struct {
	Agent   *agentSummary `json:"agent"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
}

type agentDetailResponse struct {
	AgentName      string `json:"agent_name"`
	SubjectAddress string `json:"subject_address"`
	InviteURL      string `json:"invite_url"`
	Bio            string `json:"bio,omitempty"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}
