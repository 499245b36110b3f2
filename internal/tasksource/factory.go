package tasksource

import (
	"fmt"

	"github.com/Jayphen/prisync/internal/config"
)

// Clients bundles both sides of the sync.
type Clients struct {
	GitHub *GitHubClient
	Notion *NotionClient
}

// NewClients creates the GitHub and Notion clients from configuration.
func NewClients(cfg *config.Config) (*Clients, error) {
	gh, err := NewGitHubClient(GitHubConfig{
		Token:          cfg.GitHub.Token,
		APIURL:         cfg.GitHub.APIURL,
		TimelineWindow: cfg.GitHub.TimelineWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	notion, err := NewNotionClient(NotionConfig{
		Token:      cfg.Notion.Token,
		APIURL:     cfg.Notion.APIURL,
		DatabaseID: cfg.Notion.DatabaseID,
		Properties: NotionProperties{
			Title:        cfg.Notion.TitleProperty,
			Priority:     cfg.Notion.PriorityProperty,
			URL:          cfg.Notion.URLProperty,
			PriorityType: cfg.Notion.PriorityType,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Notion client: %w", err)
	}

	return &Clients{GitHub: gh, Notion: notion}, nil
}
