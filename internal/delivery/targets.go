package delivery

import (
	"github.com/voxnote/backend/internal/models"
)

// Clients holds the shared API clients used to build per-user targets.
type Clients struct {
	Notion *NotionClient
	Slack  *SlackClient
}

// Targets builds the delivery plan from a user's integration settings. Missing
// settings skip that destination.
func (c Clients) Targets(in *models.Integrations) Targets {
	var t Targets
	if in == nil {
		return t
	}
	if c.Notion != nil && in.NotionEnabled() {
		t.Destinations = append(t.Destinations, &notionDestination{client: c.Notion, token: in.NotionToken, databaseID: in.NotionDatabaseID})
	}
	if c.Slack != nil && in.SlackEnabled() {
		t.Notifiers = append(t.Notifiers, &slackNotifier{client: c.Slack, token: in.SlackBotToken, channel: in.SlackChannelID})
	}
	return t
}
