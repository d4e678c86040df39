package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"staybook/pkg/model"
)

const defaultHealthWait = 30 * time.Second

// BookingClient calls the bookings API as one authenticated user.
type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseUrl, token string) *BookingClient {
	httpClient := NewHttpClient(baseUrl)
	httpClient.Token = token
	return &BookingClient{
		httpClient: httpClient,
	}
}

// WithToken returns a client for the same server acting as another user.
func (c *BookingClient) WithToken(token string) *BookingClient {
	return NewBookingClient(c.httpClient.BaseURL, token)
}

func (c *BookingClient) WaitForHealthy(ctx context.Context) error {
	return c.httpClient.WaitForHealthy(ctx, defaultHealthWait)
}

func (c *BookingClient) Create(ctx context.Context, body any) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings", body)
}

func (c *BookingClient) CreateIdempotent(ctx context.Context, key string, body any) (*Response, error) {
	return c.httpClient.POSTWithHeaders(ctx, "/api/v1/bookings", body, map[string]string{"Idempotency-Key": key})
}

func (c *BookingClient) CreateRaw(ctx context.Context, rawBody []byte) (*Response, error) {
	return c.httpClient.POSTRaw(ctx, "/api/v1/bookings", rawBody)
}

func (c *BookingClient) GetAll(ctx context.Context, filter model.BookingFilter, limit int, offset int64) (*Response, error) {
	q := url.Values{}
	if filter.PropertyID != "" {
		q.Set("property_id", filter.PropertyID)
	}
	if filter.CustomerID != "" {
		q.Set("customer_id", filter.CustomerID)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status.String())
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.FormatInt(offset, 10))

	return c.httpClient.GET(ctx, "/api/v1/bookings?"+q.Encode())
}

func (c *BookingClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, bookingPath(id))
}

func (c *BookingClient) Confirm(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.POST(ctx, bookingPath(id)+"/confirm", nil)
}

func (c *BookingClient) Cancel(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.POST(ctx, bookingPath(id)+"/cancel", nil)
}

func (c *BookingClient) Complete(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.POST(ctx, bookingPath(id)+"/complete", nil)
}

func (c *BookingClient) ListProperties(ctx context.Context, limit int, offset int64) (*Response, error) {
	path := fmt.Sprintf("/api/v1/admin/properties?limit=%d&offset=%d", limit, offset)
	return c.httpClient.GET(ctx, path)
}

func (c *BookingClient) SetApproval(ctx context.Context, propertyID string, approved bool) (*Response, error) {
	path := "/api/v1/admin/properties/id/" + url.PathEscape(propertyID) + "/approval"
	return c.httpClient.PATCH(ctx, path, model.PropertyApprovalRequest{IsApproved: &approved})
}

func (c *BookingClient) DecodeBooking(resp *Response) (*model.Booking, error) {
	var booking model.Booking
	if err := decodeData(resp, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *BookingClient) DecodeBookings(resp *Response) ([]*model.Booking, *Metadata, error) {
	var bookings []*model.Booking
	metadata, err := decodePage(resp, &bookings)
	if err != nil {
		return nil, nil, err
	}
	return bookings, metadata, nil
}

func (c *BookingClient) DecodeProperty(resp *Response) (*model.Property, error) {
	var property model.Property
	if err := decodeData(resp, &property); err != nil {
		return nil, err
	}
	return &property, nil
}

func (c *BookingClient) DecodeProperties(resp *Response) ([]*model.PropertyWithRevenue, *Metadata, error) {
	var properties []*model.PropertyWithRevenue
	metadata, err := decodePage(resp, &properties)
	if err != nil {
		return nil, nil, err
	}
	return properties, metadata, nil
}

func bookingPath(id string) string {
	return "/api/v1/bookings/id/" + url.PathEscape(id)
}

func decodeData(resp *Response, target any) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return fmt.Errorf("could not decode response wrapper:\n%+v\n%s", resp.ToString(), err)
	}
	if err := json.Unmarshal(wrapper.Data, target); err != nil {
		return fmt.Errorf("could not decode response data:\n%+v\n%s", resp.ToString(), err)
	}
	return nil
}

func decodePage(resp *Response, target any) (*Metadata, error) {
	var wrapper struct {
		Data       json.RawMessage `json:"data"`
		TotalCount int64           `json:"total_count"`
		Limit      int             `json:"limit"`
		Offset     int64           `json:"offset"`
	}

	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode paginated resp:\n%+v\n%s", resp.ToString(), err)
	}
	if err := json.Unmarshal(wrapper.Data, target); err != nil {
		return nil, fmt.Errorf("could not decode list:\n%+v\n%s", resp.ToString(), err)
	}

	return &Metadata{
		TotalCount: wrapper.TotalCount,
		Limit:      wrapper.Limit,
		Offset:     wrapper.Offset,
	}, nil
}
