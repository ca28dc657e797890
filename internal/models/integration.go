package models

import (
	"time"

	"github.com/google/uuid"
)

// Integrations holds a user's destination credentials and targets.
type Integrations struct {
	UserID           uuid.UUID `json:"user_id"`
	NotionToken      string    `json:"-"`
	NotionDatabaseID string    `json:"notion_database_id"`
	SlackBotToken    string    `json:"-"`
	SlackChannelID   string    `json:"slack_channel_id"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NotionEnabled reports whether Notion page creation is configured.
func (i *Integrations) NotionEnabled() bool {
	return i != nil && i.NotionToken != "" && i.NotionDatabaseID != ""
}

// SlackEnabled reports whether Slack notification is configured.
func (i *Integrations) SlackEnabled() bool {
	return i != nil && i.SlackBotToken != "" && i.SlackChannelID != ""
}

// IntegrationsPublic is the API view; tokens are never echoed back.
type IntegrationsPublic struct {
	NotionConnected  bool   `json:"notion_connected"`
	NotionDatabaseID string `json:"notion_database_id"`
	SlackConnected   bool   `json:"slack_connected"`
	SlackChannelID   string `json:"slack_channel_id"`
}

// ToPublic converts Integrations to IntegrationsPublic.
func (i *Integrations) ToPublic() IntegrationsPublic {
	if i == nil {
		return IntegrationsPublic{}
	}
	return IntegrationsPublic{
		NotionConnected:  i.NotionEnabled(),
		NotionDatabaseID: i.NotionDatabaseID,
		SlackConnected:   i.SlackEnabled(),
		SlackChannelID:   i.SlackChannelID,
	}
}
