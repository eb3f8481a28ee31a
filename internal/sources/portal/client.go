package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"scamwatch/internal/config"
	"scamwatch/internal/domain/models"
	"scamwatch/pkg/logger"
)

// Client fetches outbound messages from the admin portal API.
// Pagination is handled here: callers always get the complete,
// non-duplicated set of messages for a time window.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	logger     *logger.Logger
}

// NewClient creates a portal API client
func NewClient(cfg config.PortalConfig, log *logger.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		logger:     log.WithComponent("portal-client"),
	}
}

// FetchWindow retrieves all outbound messages sent within the window,
// exhausting pagination. Implements jobs.MessageSource.
func (c *Client) FetchWindow(ctx context.Context, start, end time.Time) ([]models.Message, error) {
	var all []models.Message

	for page := 1; ; page++ {
		batch, err := c.fetchPage(ctx, start, end, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize {
			break
		}
	}

	c.logger.Info().
		Int("count", len(all)).
		Time("window_start", start).
		Time("window_end", end).
		Msg("fetched messages from portal")

	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, start, end time.Time, page int) ([]models.Message, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("filter[type]", "outbound")
	params.Set("filter[start-inserted_at]", start.UTC().Format(time.RFC3339))
	params.Set("filter[end-inserted_at]", end.UTC().Format(time.RFC3339))
	params.Set("sort", "-inserted_at")

	endpoint := fmt.Sprintf("%s/smses?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("portal API returned status %d: %s", resp.StatusCode, body)
	}

	var messages []models.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("failed to decode portal response: %w", err)
	}

	c.logger.Debug().Int("page", page).Int("count", len(messages)).Msg("fetched portal page")
	return messages, nil
}
