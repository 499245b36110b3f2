package tasksource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Jayphen/prisync/internal/types"
)

const (
	notionAPIURL  = "https://api.notion.com"
	notionVersion = "2022-06-28"

	defaultNotionPageSize = 50
)

// Priority property types.
const (
	PropertySelect = "select"
	PropertyStatus = "status"
)

// NotionClient reads tasks from a Notion database and writes their priority.
type NotionClient struct {
	token      string
	apiURL     string
	databaseID string
	props      NotionProperties
	client     *http.Client

	mu           sync.Mutex
	priorityType string
}

// NotionProperties names the database properties prisync reads and writes.
type NotionProperties struct {
	Title    string
	Priority string
	URL      string

	// PriorityType fixes the priority property type. When empty it is taken
	// from the pages read, defaulting to select.
	PriorityType string
}

// NotionConfig holds configuration for the Notion client.
type NotionConfig struct {
	Token      string
	APIURL     string // defaults to https://api.notion.com
	DatabaseID string
	Properties NotionProperties
	HTTPClient *http.Client
}

// NewNotionClient creates a new Notion client.
func NewNotionClient(config NotionConfig) (*NotionClient, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("%w: Notion token not set", ErrInvalidConfig)
	}
	if config.DatabaseID == "" {
		return nil, fmt.Errorf("%w: Notion database id not set", ErrInvalidConfig)
	}

	props := config.Properties
	if props.Title == "" {
		props.Title = "Name"
	}
	if props.Priority == "" {
		props.Priority = "Priority"
	}
	if props.URL == "" {
		props.URL = "GitHub"
	}

	switch props.PriorityType {
	case "", PropertySelect, PropertyStatus:
	default:
		return nil, fmt.Errorf("%w: unsupported Notion priority type %q", ErrInvalidConfig, props.PriorityType)
	}

	apiURL := strings.TrimRight(config.APIURL, "/")
	if apiURL == "" {
		apiURL = notionAPIURL
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &NotionClient{
		token:        config.Token,
		apiURL:       apiURL,
		databaseID:   config.DatabaseID,
		props:        props,
		client:       client,
		priorityType: props.PriorityType,
	}, nil
}

// DatabaseID returns the queried database.
func (n *NotionClient) DatabaseID() string {
	return n.databaseID
}

type notionRichText struct {
	PlainText string `json:"plain_text"`
}

type notionOption struct {
	Name string `json:"name"`
}

// notionProperty covers the property types prisync understands.
type notionProperty struct {
	Type     string           `json:"type"`
	Title    []notionRichText `json:"title"`
	RichText []notionRichText `json:"rich_text"`
	Select   *notionOption    `json:"select"`
	Status   *notionOption    `json:"status"`
	URL      *string          `json:"url"`
}

type notionPage struct {
	ID             string                    `json:"id"`
	LastEditedTime time.Time                 `json:"last_edited_time"`
	Archived       bool                      `json:"archived"`
	Properties     map[string]notionProperty `json:"properties"`
}

// QueryTasks returns one page of tasks edited at or after q.EditedSince,
// oldest edit first.
func (n *NotionClient) QueryTasks(ctx context.Context, q TaskQuery) (*TaskPage, error) {
	pageSize := q.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = defaultNotionPageSize
	}

	payload := map[string]interface{}{
		"page_size": pageSize,
		"sorts": []map[string]string{
			{"timestamp": "last_edited_time", "direction": "ascending"},
		},
	}
	if q.EditedSince != "" {
		payload["filter"] = map[string]interface{}{
			"timestamp": "last_edited_time",
			"last_edited_time": map[string]string{
				"on_or_after": q.EditedSince,
			},
		}
	}
	if q.Cursor != "" {
		payload["start_cursor"] = q.Cursor
	}

	body, err := n.request(ctx, http.MethodPost, "/v1/databases/"+n.databaseID+"/query", payload)
	if err != nil {
		return nil, fmt.Errorf("query database %s: %w", n.databaseID, err)
	}

	var result struct {
		Results    []notionPage `json:"results"`
		NextCursor *string      `json:"next_cursor"`
		HasMore    bool         `json:"has_more"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse Notion response: %w", err)
	}

	page := &TaskPage{HasMore: result.HasMore}
	if result.NextCursor != nil {
		page.NextCursor = *result.NextCursor
	}
	for _, p := range result.Results {
		if p.Archived {
			continue
		}
		page.Tasks = append(page.Tasks, n.convertPage(p))
	}
	return page, nil
}

// SetPriority sets the priority of a task; nil clears it. The property is
// written with the same type it was read as.
func (n *NotionClient) SetPriority(ctx context.Context, taskID string, value *string) error {
	var option interface{}
	if value != nil {
		option = map[string]string{"name": *value}
	}

	payload := map[string]interface{}{
		"properties": map[string]interface{}{
			n.props.Priority: map[string]interface{}{n.PriorityType(): option},
		},
	}

	if _, err := n.request(ctx, http.MethodPatch, "/v1/pages/"+taskID, payload); err != nil {
		return fmt.Errorf("set priority of task %s: %w", taskID, err)
	}
	return nil
}

// PriorityType returns the type the priority property is written as.
func (n *NotionClient) PriorityType() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.priorityType == "" {
		return PropertySelect
	}
	return n.priorityType
}

// notePriorityType records the property type seen on read unless configured.
func (n *NotionClient) notePriorityType(typ string) {
	if n.props.PriorityType != "" {
		return
	}
	switch typ {
	case PropertySelect, PropertyStatus:
		n.mu.Lock()
		n.priorityType = typ
		n.mu.Unlock()
	}
}

func (n *NotionClient) request(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.apiURL+path, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Service: "Notion", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// convertPage converts a database page into a TaskRecord. Missing or
// differently typed properties yield zero values.
func (n *NotionClient) convertPage(p notionPage) types.TaskRecord {
	rec := types.TaskRecord{
		TaskID:   p.ID,
		EditedAt: p.LastEditedTime,
	}

	if prop, ok := p.Properties[n.props.Title]; ok {
		rec.Title = strings.TrimSpace(joinPlainText(prop.Title))
	}

	if prop, ok := p.Properties[n.props.Priority]; ok {
		n.notePriorityType(prop.Type)
		var opt *notionOption
		switch prop.Type {
		case PropertyStatus:
			opt = prop.Status
		default:
			opt = prop.Select
		}
		if opt != nil && opt.Name != "" {
			name := opt.Name
			rec.Priority = &name
		}
	}

	if prop, ok := p.Properties[n.props.URL]; ok {
		switch prop.Type {
		case "rich_text":
			rec.LinkedURL = strings.TrimSpace(joinPlainText(prop.RichText))
		default:
			if prop.URL != nil {
				rec.LinkedURL = strings.TrimSpace(*prop.URL)
			}
		}
	}

	return rec
}

func joinPlainText(parts []notionRichText) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.PlainText)
	}
	return sb.String()
}
