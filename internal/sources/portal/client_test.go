package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamwatch/internal/config"
	"scamwatch/internal/domain/models"
	"scamwatch/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, pageSize int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.PortalConfig{
		BaseURL:  server.URL,
		APIKey:   "portal-key",
		PageSize: pageSize,
		Timeout:  5 * time.Second,
	}, logger.NewDefault())
}

func portalMessage(body string) models.Message {
	return models.Message{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		Body:       body,
		FromNumber: "+15550001111",
		ToNumber:   "+15559998888",
		SentAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestClient_FetchWindowPagination(t *testing.T) {
	pages := map[string][]models.Message{
		"1": {portalMessage("one"), portalMessage("two")},
		"2": {portalMessage("three")},
	}

	var requests []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer portal-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/smses", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "outbound", q.Get("filter[type]"))
		assert.Equal(t, "-inserted_at", q.Get("sort"))
		assert.Equal(t, "2", q.Get("limit"))
		assert.NotEmpty(t, q.Get("filter[start-inserted_at]"))
		assert.NotEmpty(t, q.Get("filter[end-inserted_at]"))

		page := q.Get("page")
		requests = append(requests, page)
		require.NoError(t, json.NewEncoder(w).Encode(pages[page]))
	}, 2)

	end := time.Now().UTC()
	messages, err := client.FetchWindow(context.Background(), end.Add(-time.Hour), end)
	require.NoError(t, err)

	// Page 2 is short, so no page 3 request is made
	assert.Equal(t, []string{"1", "2"}, requests)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Body)
	assert.Equal(t, "three", messages[2].Body)
}

func TestClient_FetchWindowEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}, 100)

	end := time.Now().UTC()
	messages, err := client.FetchWindow(context.Background(), end.Add(-time.Hour), end)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestClient_FetchWindowFullLastPage(t *testing.T) {
	// A full page followed by an empty one terminates cleanly
	var page int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		page++
		if page == 1 {
			json.NewEncoder(w).Encode([]models.Message{portalMessage("a"), portalMessage("b")})
			return
		}
		w.Write([]byte("[]"))
	}, 2)

	end := time.Now().UTC()
	messages, err := client.FetchWindow(context.Background(), end.Add(-time.Hour), end)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, 2, page)
}

func TestClient_FetchWindowServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}, 100)

	end := time.Now().UTC()
	_, err := client.FetchWindow(context.Background(), end.Add(-time.Hour), end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestClient_MessageDecoding(t *testing.T) {
	id := uuid.New()
	account := uuid.New()
	sent := time.Date(2026, 8, 27, 14, 30, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"id": "` + id.String() + `",
			"account_id": "` + account.String() + `",
			"message": "hello there",
			"host_number": "+15550001111",
			"remote_number": "+15559998888",
			"inserted_at": "2026-08-27T14:30:00Z"
		}]`))
	}, 100)

	end := time.Now().UTC()
	messages, err := client.FetchWindow(context.Background(), end.Add(-time.Hour), end)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, account, msg.AccountID)
	assert.Equal(t, "hello there", msg.Body)
	assert.Equal(t, "+15550001111", msg.FromNumber)
	assert.Equal(t, "+15559998888", msg.ToNumber)
	assert.True(t, msg.SentAt.Equal(sent))
}
