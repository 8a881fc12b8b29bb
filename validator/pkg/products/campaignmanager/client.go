// Package campaignmanager talks to the Campaign Manager 360 REST API: it
// lists campaigns and placements for a user profile and patches entity names.
package campaignmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/adlabs/taxonomy-wizard/utils/pkg/retry"
	"github.com/adlabs/taxonomy-wizard/validator/pkg/products/driver"
)

const (
	DefaultBaseURL = "https://dfareporting.googleapis.com/dfareporting/v4"

	// The platform enforces a per-minute request quota per profile.
	DefaultRequestsPerMinute = 60

	defaultCallTimeout = 30 * time.Second

	platformDateLayout = "2006-01-02"
)

// Entity resource paths by entity type.
const (
	EntityTypeCampaign  = "Campaign"
	EntityTypePlacement = "Placement"
)

var resourcePaths = map[string]string{
	EntityTypeCampaign:  "campaigns",
	EntityTypePlacement: "placements",
}

type ClientConfig struct {
	Logger      *slog.Logger
	BaseURL     string
	HTTPClient  *http.Client
	Credentials driver.Credentials

	// RequestsPerMinute caps outbound calls; zero means the platform default.
	RequestsPerMinute int
	CallTimeout       time.Duration
	Retry             retry.Config
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Credentials.AccessToken == "" {
		return errors.New("access token is required")
	}
	if cfg.Credentials.ProfileID == "" {
		return errors.New("profile id is required")
	}
	return nil
}

// Client is an HTTP client for the Campaign Manager API.
type Client struct {
	log         *slog.Logger
	baseURL     string
	httpClient  *http.Client
	credentials driver.Credentials
	limiter     *rate.Limiter
	callTimeout time.Duration
	retry       retry.Config
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultCallTimeout}
	}
	rpm := cfg.RequestsPerMinute
	if rpm == 0 {
		rpm = DefaultRequestsPerMinute
	}
	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = defaultCallTimeout
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}

	return &Client{
		log:         cfg.Logger,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  httpClient,
		credentials: cfg.Credentials,
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		callTimeout: callTimeout,
		retry:       retryCfg,
	}, nil
}

// platformEntity is one listed entity with the dates the filter needs.
type platformEntity struct {
	ID        int64
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
}

type entityJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type entityPage struct {
	Campaigns     []entityJSON `json:"campaigns"`
	Placements    []entityJSON `json:"placements"`
	NextPageToken string       `json:"nextPageToken"`
}

// ListEntities pages through all non-archived entities of one type for the
// client's profile, scoped to the given advertiser IDs.
func (c *Client) ListEntities(ctx context.Context, entityType string, advertiserIDs []int64) ([]platformEntity, error) {
	resource, ok := resourcePaths[entityType]
	if !ok {
		return nil, fmt.Errorf("unsupported entity type %q for Campaign Manager", entityType)
	}

	var entities []platformEntity
	pageToken := ""
	for {
		page, err := c.listPage(ctx, resource, advertiserIDs, pageToken)
		if err != nil {
			return nil, err
		}

		rows := page.Campaigns
		if resource == resourcePaths[EntityTypePlacement] {
			rows = page.Placements
		}
		for _, row := range rows {
			entity, err := row.toEntity()
			if err != nil {
				return nil, err
			}
			entities = append(entities, entity)
		}

		if page.NextPageToken == "" || len(rows) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}

	c.log.Debug("campaignmanager: entities listed", "entity_type", entityType, "count", len(entities))
	return entities, nil
}

func (c *Client) listPage(ctx context.Context, resource string, advertiserIDs []int64, pageToken string) (*entityPage, error) {
	query := url.Values{}
	query.Set("archived", "false")
	query.Set("sortField", "NAME")
	for _, id := range advertiserIDs {
		query.Add("advertiserIds", strconv.FormatInt(id, 10))
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	endpoint := fmt.Sprintf("%s/userprofiles/%s/%s?%s", c.baseURL, c.credentials.ProfileID, resource, query.Encode())

	var page entityPage
	err := retry.Do(ctx, c.retry, func() error {
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, &page)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", resource, err)
	}
	return &page, nil
}

// UpdateName patches one entity's name. Not-found and other client errors
// come back as status errors so the updater can classify them.
func (c *Client) UpdateName(ctx context.Context, entityType string, update driver.NameUpdate) error {
	resource, ok := resourcePaths[entityType]
	if !ok {
		return fmt.Errorf("unsupported entity type %q for Campaign Manager", entityType)
	}

	endpoint := fmt.Sprintf("%s/userprofiles/%s/%s?id=%d", c.baseURL, c.credentials.ProfileID, resource, update.EntityID)
	body := map[string]string{"name": update.NewName}

	return c.doJSON(ctx, http.MethodPatch, endpoint, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(callCtx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.credentials.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &retry.StatusError{Code: resp.StatusCode, Reason: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (j entityJSON) toEntity() (platformEntity, error) {
	id, err := strconv.ParseInt(j.ID, 10, 64)
	if err != nil {
		return platformEntity{}, fmt.Errorf("invalid entity id %q: %w", j.ID, err)
	}
	entity := platformEntity{ID: id, Name: j.Name}
	if j.StartDate != "" {
		t, err := time.Parse(platformDateLayout, j.StartDate)
		if err != nil {
			return platformEntity{}, fmt.Errorf("invalid start date %q for entity %d: %w", j.StartDate, id, err)
		}
		entity.StartDate = &t
	}
	if j.EndDate != "" {
		t, err := time.Parse(platformDateLayout, j.EndDate)
		if err != nil {
			return platformEntity{}, fmt.Errorf("invalid end date %q for entity %d: %w", j.EndDate, id, err)
		}
		entity.EndDate = &t
	}
	return entity, nil
}
