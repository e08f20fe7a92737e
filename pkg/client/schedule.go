package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "saubio/pkg/errors"
	"saubio/pkg/model"
)

// ScheduleReader is the read surface of the external schedules service the
// availability index composes over. Only the request/response contract is
// owned here; the service itself lives outside this core.
type ScheduleReader interface {
	ProviderAvailable(ctx context.Context, providerID string, window model.TimeWindow) (bool, error)
	ActiveTimeOff(ctx context.Context, providerID string, window model.TimeWindow) ([]*model.TimeOff, error)
}

type ScheduleClient struct {
	httpClient *HttpClient
}

func NewScheduleClient(baseURL string) *ScheduleClient {
	return &ScheduleClient{
		httpClient: NewHttpClient(baseURL),
	}
}

func (c *ScheduleClient) ProviderAvailable(ctx context.Context, providerID string, window model.TimeWindow) (bool, error) {
	q := url.Values{}
	q.Set("start", window.Start.Format(time.RFC3339))
	q.Set("end", window.End.Format(time.RFC3339))
	path := fmt.Sprintf("/api/v1/schedules/providers/%s/availability?%s", url.PathEscape(providerID), q.Encode())

	resp, err := c.httpClient.GET(ctx, path)
	if err != nil {
		return false, apperrors.Internal("Failed to query provider availability", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, apperrors.NotFoundWithID("Provider schedule", providerID)
	}
	if resp.StatusCode != http.StatusOK {
		return false, apperrors.Unavailable("Schedule service")
	}

	var wrapper struct {
		Data struct {
			Available bool `json:"available"`
		} `json:"data"`
	}
	if err := resp.DecodeJSON(&wrapper); err != nil {
		return false, apperrors.Internal("Failed to decode availability response", err)
	}
	return wrapper.Data.Available, nil
}

func (c *ScheduleClient) ActiveTimeOff(ctx context.Context, providerID string, window model.TimeWindow) ([]*model.TimeOff, error) {
	q := url.Values{}
	q.Set("start", window.Start.Format(time.RFC3339))
	q.Set("end", window.End.Format(time.RFC3339))
	path := fmt.Sprintf("/api/v1/schedules/providers/%s/time-off?%s", url.PathEscape(providerID), q.Encode())

	resp, err := c.httpClient.GET(ctx, path)
	if err != nil {
		return nil, apperrors.Internal("Failed to query time off", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Unavailable("Schedule service")
	}

	var wrapper struct {
		Data []*model.TimeOff `json:"data"`
	}
	if err := resp.DecodeJSON(&wrapper); err != nil {
		return nil, apperrors.Internal("Failed to decode time off response", err)
	}
	return wrapper.Data, nil
}
