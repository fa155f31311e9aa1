package clawhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://clawhub.ai"

// SkillSummary represents a skill in the list endpoint
type SkillSummary struct {
	Slug        string            `json:"slug"`
	DisplayName string            `json:"displayName"`
	Summary     string            `json:"summary"`
	Tags        map[string]string `json:"tags,omitempty"`
	CreatedAt   int64             `json:"createdAt,omitempty"`
	UpdatedAt   int64             `json:"updatedAt,omitempty"`
}

// SkillListResponse is the response from /skills
type SkillListResponse struct {
	Items []SkillSummary `json:"items"`
}

type SkillOwner struct {
	Handle      string `json:"handle"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Image       string `json:"image"`
}

// SkillDetailResponse represents /skills/{slug}
type SkillDetailResponse struct {
	Skill struct {
		Slug        string            `json:"slug"`
		DisplayName string            `json:"displayName"`
		Summary     string            `json:"summary"`
		Tags        map[string]string `json:"tags"`
		CreatedAt   int64             `json:"createdAt"`
		UpdatedAt   int64             `json:"updatedAt"`
	} `json:"skill"`
	LatestVersion struct {
		Version   string `json:"version"`
		CreatedAt int64  `json:"createdAt"`
		Changelog string `json:"changelog"`
	} `json:"latestVersion"`
	Owner      *SkillOwner `json:"owner"`
	Moderation any         `json:"moderation"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1"+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clawhub %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListSkills fetches the list of skills from ClawHub
func (c *Client) ListSkills(ctx context.Context) ([]SkillSummary, error) {
	var out SkillListResponse
	if err := c.get(ctx, "/skills", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// SearchSkills filters the registry listing by a case-insensitive
// substring of slug, display name or summary.
func (c *Client) SearchSkills(ctx context.Context, query string) ([]SkillSummary, error) {
	items, err := c.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items, nil
	}
	var res []SkillSummary
	for _, s := range items {
		if strings.Contains(strings.ToLower(s.Slug), query) ||
			strings.Contains(strings.ToLower(s.DisplayName), query) ||
			strings.Contains(strings.ToLower(s.Summary), query) {
			res = append(res, s)
		}
	}
	return res, nil
}

// GetSkill fetches the detail for a given slug
func (c *Client) GetSkill(ctx context.Context, slug string) (*SkillDetailResponse, error) {
	if slug == "" {
		return nil, fmt.Errorf("empty slug")
	}
	var out SkillDetailResponse
	if err := c.get(ctx, "/skills/"+url.PathEscape(slug), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FileURL is the download location of a file in the latest version of a
// skill, SKILL.md when path is empty.
func (c *Client) FileURL(slug, path string) string {
	if path == "" {
		path = "SKILL.md"
	}
	return c.BaseURL + "/api/v1/skills/" + url.PathEscape(slug) + "/file?path=" + url.QueryEscape(path)
}
