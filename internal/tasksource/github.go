package tasksource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jayphen/prisync/internal/types"
)

const (
	githubAPIURL = "https://api.github.com"

	// defaultTimelineWindow is the GraphQL connection limit.
	defaultTimelineWindow = 100
	defaultSearchPageSize = 50
)

// GitHubClient talks to the GitHub GraphQL API for reads and the REST API
// for label mutations.
type GitHubClient struct {
	token  string
	apiURL string
	window int
	client *http.Client
}

// GitHubConfig holds configuration for the GitHub client.
type GitHubConfig struct {
	Token  string
	APIURL string // defaults to https://api.github.com

	// TimelineWindow is the number of recent label events fetched with
	// each issue (max 100).
	TimelineWindow int

	HTTPClient *http.Client
}

// NewGitHubClient creates a new GitHub client.
func NewGitHubClient(config GitHubConfig) (*GitHubClient, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("%w: GitHub token not set", ErrInvalidConfig)
	}

	apiURL := strings.TrimRight(config.APIURL, "/")
	if apiURL == "" {
		apiURL = githubAPIURL
	}

	window := config.TimelineWindow
	if window <= 0 || window > defaultTimelineWindow {
		window = defaultTimelineWindow
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &GitHubClient{
		token:  config.Token,
		apiURL: apiURL,
		window: window,
		client: client,
	}, nil
}

// TimelineWindow returns the number of label events fetched per issue.
func (g *GitHubClient) TimelineWindow() int {
	return g.window
}

const issueFragments = `
fragment issueFields on Issue {
	url
	number
	state
	updatedAt
	repository { nameWithOwner }
	labels(first: 100) { nodes { name } }
	timelineItems(last: $window, itemTypes: [LABELED_EVENT, UNLABELED_EVENT]) {
		totalCount
		nodes { ...labelEventFields }
	}
}

fragment prFields on PullRequest {
	url
	number
	state
	updatedAt
	repository { nameWithOwner }
	labels(first: 100) { nodes { name } }
	timelineItems(last: $window, itemTypes: [LABELED_EVENT, UNLABELED_EVENT]) {
		totalCount
		nodes { ...labelEventFields }
	}
}
`

const labelEventFragment = `
fragment labelEventFields on Node {
	__typename
	... on LabeledEvent { createdAt actor { login } label { name } }
	... on UnlabeledEvent { createdAt actor { login } label { name } }
}
`

const searchQuery = `
query($q: String!, $first: Int!, $after: String, $window: Int!) {
	search(type: ISSUE, query: $q, first: $first, after: $after) {
		pageInfo { hasNextPage endCursor }
		edges {
			cursor
			node {
				__typename
				... on Issue { ...issueFields }
				... on PullRequest { ...prFields }
			}
		}
	}
}
` + issueFragments + labelEventFragment

const resourceQuery = `
query($url: URI!, $window: Int!) {
	resource(url: $url) {
		__typename
		... on Issue { ...issueFields }
		... on PullRequest { ...prFields }
	}
}
` + issueFragments + labelEventFragment

const timelineQuery = `
query($url: URI!, $after: String) {
	resource(url: $url) {
		__typename
		... on Issue {
			timelineItems(first: 100, after: $after, itemTypes: [LABELED_EVENT, UNLABELED_EVENT]) {
				pageInfo { hasNextPage endCursor }
				nodes { ...labelEventFields }
			}
		}
		... on PullRequest {
			timelineItems(first: 100, after: $after, itemTypes: [LABELED_EVENT, UNLABELED_EVENT]) {
				pageInfo { hasNextPage endCursor }
				nodes { ...labelEventFields }
			}
		}
	}
}
` + labelEventFragment

type ghPageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type ghLabelEvent struct {
	Typename  string    `json:"__typename"`
	CreatedAt time.Time `json:"createdAt"`
	Actor     *struct {
		Login string `json:"login"`
	} `json:"actor"`
	Label struct {
		Name string `json:"name"`
	} `json:"label"`
}

type ghTimeline struct {
	TotalCount int            `json:"totalCount"`
	PageInfo   ghPageInfo     `json:"pageInfo"`
	Nodes      []ghLabelEvent `json:"nodes"`
}

type ghIssue struct {
	Typename   string    `json:"__typename"`
	URL        string    `json:"url"`
	Number     int       `json:"number"`
	State      string    `json:"state"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Repository struct {
		NameWithOwner string `json:"nameWithOwner"`
	} `json:"repository"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	TimelineItems ghTimeline `json:"timelineItems"`
}

// SearchIssues returns one page of issues and pull requests in q.Repo.
func (g *GitHubClient) SearchIssues(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	first := q.PageSize
	if first <= 0 || first > 100 {
		first = defaultSearchPageSize
	}

	variables := map[string]interface{}{
		"q":      searchString(q),
		"first":  first,
		"after":  nullable(q.Cursor),
		"window": g.window,
	}

	var data struct {
		Search struct {
			PageInfo ghPageInfo `json:"pageInfo"`
			Edges    []struct {
				Cursor string  `json:"cursor"`
				Node   ghIssue `json:"node"`
			} `json:"edges"`
		} `json:"search"`
	}
	if err := g.executeQuery(ctx, searchQuery, variables, &data); err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Repo, err)
	}

	page := &SearchPage{
		EndCursor:   data.Search.PageInfo.EndCursor,
		HasNextPage: data.Search.PageInfo.HasNextPage,
	}
	for _, edge := range data.Search.Edges {
		issue, ok := convertGitHubIssue(edge.Node)
		if !ok {
			continue
		}
		page.Items = append(page.Items, SearchItem{Cursor: edge.Cursor, Issue: issue})
	}
	return page, nil
}

// GetIssue fetches a single issue or pull request with its recent label history.
func (g *GitHubClient) GetIssue(ctx context.Context, ref types.IssueRef) (*Issue, error) {
	variables := map[string]interface{}{
		"url":    ref.CanonicalURL(),
		"window": g.window,
	}

	var data struct {
		Resource *ghIssue `json:"resource"`
	}
	if err := g.executeQuery(ctx, resourceQuery, variables, &data); err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	if data.Resource == nil {
		return nil, fmt.Errorf("get %s: %w", ref, ErrNotFound)
	}

	issue, ok := convertGitHubIssue(*data.Resource)
	if !ok {
		return nil, fmt.Errorf("get %s: %w: resource is a %s", ref, ErrNotFound, data.Resource.Typename)
	}
	return &issue, nil
}

// FullTimeline pages through every label event of an issue.
func (g *GitHubClient) FullTimeline(ctx context.Context, ref types.IssueRef) ([]types.LabelEvent, error) {
	var events []types.LabelEvent
	after := ""

	for {
		variables := map[string]interface{}{
			"url":   ref.CanonicalURL(),
			"after": nullable(after),
		}

		var data struct {
			Resource *struct {
				Typename      string     `json:"__typename"`
				TimelineItems ghTimeline `json:"timelineItems"`
			} `json:"resource"`
		}
		if err := g.executeQuery(ctx, timelineQuery, variables, &data); err != nil {
			return nil, fmt.Errorf("timeline %s: %w", ref, err)
		}
		if data.Resource == nil {
			return nil, fmt.Errorf("timeline %s: %w", ref, ErrNotFound)
		}

		events = append(events, convertLabelEvents(data.Resource.TimelineItems.Nodes)...)

		info := data.Resource.TimelineItems.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			break
		}
		after = info.EndCursor
	}

	reverseEvents(events)
	return events, nil
}

// AddLabels attaches labels to an issue in a single request.
func (g *GitHubClient) AddLabels(ctx context.Context, ref types.IssueRef, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", ref.Owner, ref.Repo, ref.Number)
	payload := map[string]interface{}{"labels": labels}
	if err := g.rest(ctx, http.MethodPost, path, payload); err != nil {
		return fmt.Errorf("add labels to %s: %w", ref, err)
	}
	return nil
}

// RemoveLabel detaches a label. A 404 means it is already gone.
func (g *GitHubClient) RemoveLabel(ctx context.Context, ref types.IssueRef, label string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels/%s", ref.Owner, ref.Repo, ref.Number, url.PathEscape(label))
	err := g.rest(ctx, http.MethodDelete, path, nil)
	if err == nil || isStatus(err, http.StatusNotFound) {
		return nil
	}
	return fmt.Errorf("remove label %q from %s: %w", label, ref, err)
}

// executeQuery executes a GraphQL query and decodes its data into out.
func (g *GitHubClient) executeQuery(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	reqBody := map[string]interface{}{
		"query":     query,
		"variables": variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"/graphql", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "bearer "+g.token)

	body, err := g.do(req)
	if err != nil {
		return err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []GraphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse GitHub response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		gqlErr := envelope.Errors[0]
		return &gqlErr
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to parse GitHub response: %w", err)
	}
	return nil
}

func (g *GitHubClient) rest(ctx context.Context, method, path string, payload interface{}) error {
	var reader io.Reader
	if payload != nil {
		jsonPayload, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		reader = bytes.NewReader(jsonPayload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.apiURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	_, err = g.do(req)
	return err
}

func (g *GitHubClient) do(req *http.Request) ([]byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := resp.StatusCode
		// Secondary rate limits come back as 403 with an exhausted quota.
		if status == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
			status = http.StatusTooManyRequests
		}
		return nil, &APIError{Service: "GitHub", StatusCode: status, Body: string(body)}
	}
	return body, nil
}

// convertGitHubIssue converts a GraphQL issue or pull request node.
func convertGitHubIssue(node ghIssue) (Issue, bool) {
	if node.Typename != "Issue" && node.Typename != "PullRequest" {
		return Issue{}, false
	}

	owner, repo, ok := strings.Cut(node.Repository.NameWithOwner, "/")
	if !ok || node.Number <= 0 {
		return Issue{}, false
	}

	state := strings.ToLower(node.State)
	if state == "merged" {
		state = StateClosed
	}

	labels := make([]string, 0, len(node.Labels.Nodes))
	for _, l := range node.Labels.Nodes {
		labels = append(labels, l.Name)
	}

	timeline := convertLabelEvents(node.TimelineItems.Nodes)
	reverseEvents(timeline)

	return Issue{
		Ref: types.IssueRef{
			Owner:  owner,
			Repo:   repo,
			Number: node.Number,
			Pull:   node.Typename == "PullRequest",
		},
		URL:           node.URL,
		State:         state,
		Labels:        labels,
		UpdatedAt:     node.UpdatedAt,
		Timeline:      timeline,
		TimelineTotal: node.TimelineItems.TotalCount,
	}, true
}

// convertLabelEvents keeps the API's chronological order.
func convertLabelEvents(nodes []ghLabelEvent) []types.LabelEvent {
	events := make([]types.LabelEvent, 0, len(nodes))
	for _, n := range nodes {
		var kind types.EventKind
		switch n.Typename {
		case "LabeledEvent":
			kind = types.EventLabeled
		case "UnlabeledEvent":
			kind = types.EventUnlabeled
		default:
			continue
		}
		ev := types.LabelEvent{Kind: kind, Label: n.Label.Name, OccurredAt: n.CreatedAt}
		if n.Actor != nil {
			ev.Actor = n.Actor.Login
		}
		events = append(events, ev)
	}
	return events
}

func reverseEvents(events []types.LabelEvent) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}

func searchString(q SearchQuery) string {
	parts := []string{"repo:" + q.Repo}
	if q.State != "" {
		parts = append(parts, "is:"+q.State)
	}
	parts = append(parts, "sort:updated-asc")
	if q.UpdatedAfter != "" {
		parts = append(parts, "updated:>="+q.UpdatedAfter)
	}
	return strings.Join(parts, " ")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
