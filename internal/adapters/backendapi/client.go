// Package backendapi is the client for the orders, customers and auth API.
//
// Customer calls carry the session's bearer token. Order approval and the
// auth endpoints are sent without one.
package backendapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/eshaffer321/receipt-desk/internal/adapters/upstream"
	"github.com/eshaffer321/receipt-desk/internal/domain/directory"
	"github.com/eshaffer321/receipt-desk/internal/domain/editor"
)

const serviceName = "backend-api"

var errNoToken = errors.New("login response has no token")

// Client talks to the backend API.
type Client struct {
	http *upstream.Client
}

// New returns a client rooted at baseURL.
func New(baseURL string, opts ...upstream.Option) *Client {
	return &Client{http: upstream.New(serviceName, baseURL, opts...)}
}

// ApproveOrder submits an approved draft. Only 201 Created counts as success.
// The response body is returned as sent.
func (c *Client) ApproveOrder(ctx context.Context, payload editor.ApprovalPayload) ([]byte, error) {
	resp, err := c.http.SendJSON(ctx, "approve_order", upstream.Request{
		Method: http.MethodPost,
		Path:   "/orders/approve_order",
		Expect: []int{http.StatusCreated},
	}, payload, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

type customersEnvelope struct {
	Customers []directory.Customer `json:"customers"`
}

// ListCustomers fetches every customer.
func (c *Client) ListCustomers(ctx context.Context, token string) ([]directory.Customer, error) {
	var out customersEnvelope
	if _, err := c.http.SendJSON(ctx, "list_customers", upstream.Request{
		Method: http.MethodGet,
		Path:   "/customers",
		Token:  token,
	}, nil, &out); err != nil {
		return nil, err
	}
	if out.Customers == nil {
		out.Customers = []directory.Customer{}
	}
	return out.Customers, nil
}

// CustomerOrders fetches the order history of one customer.
func (c *Client) CustomerOrders(ctx context.Context, token string, id directory.ID) ([]directory.CustomerOrder, error) {
	var out []directory.CustomerOrder
	if _, err := c.http.SendJSON(ctx, "customer_orders", upstream.Request{
		Method: http.MethodGet,
		Path:   "/customers/" + url.PathEscape(string(id)) + "/orders",
		Token:  token,
	}, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []directory.CustomerOrder{}
	}
	return out, nil
}

// SearchCustomers returns the customers matching f.
func (c *Client) SearchCustomers(ctx context.Context, token string, f directory.Filters) ([]directory.Customer, error) {
	var out []directory.Customer
	if _, err := c.http.SendJSON(ctx, "search_customers", upstream.Request{
		Method: http.MethodGet,
		Path:   "/customers/search",
		Query:  FilterQuery(f),
		Token:  token,
	}, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []directory.Customer{}
	}
	return out, nil
}

// DeleteCustomer removes a customer.
func (c *Client) DeleteCustomer(ctx context.Context, token string, id directory.ID) error {
	_, err := c.http.Send(ctx, "delete_customer", upstream.Request{
		Method: http.MethodDelete,
		Path:   "/customers/" + url.PathEscape(string(id)),
		Token:  token,
	})
	return err
}

// Export is a CSV download in flight. Body must be closed.
type Export struct {
	Body        io.ReadCloser
	ContentType string
}

// ExportCustomers starts the CSV download for f.
func (c *Client) ExportCustomers(ctx context.Context, token string, f directory.Filters) (*Export, error) {
	resp, err := c.http.Stream(ctx, "download_csv", upstream.Request{
		Method: http.MethodGet,
		Path:   "/customers/download-csv",
		Query:  FilterQuery(f),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "text/csv"
	}
	return &Export{Body: resp.Body, ContentType: ct}, nil
}

// Credentials are a login attempt.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is a new staff account.
type Registration struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := c.http.Send(ctx, "login", upstream.Request{
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Body:        body,
		ContentType: "application/json",
		AuditBody:   auditUser(creds.Username),
		Redact:      true,
	})
	if err != nil {
		return "", err
	}

	var out loginResponse
	if err := c.http.Decode("login", resp.Body, &out); err != nil {
		return "", err
	}
	token := out.Token
	if token == "" {
		token = out.AccessToken
	}
	if token == "" {
		return "", c.http.Malformed("login", nil, errNoToken)
	}
	return token, nil
}

// Register creates a staff account.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	_, err = c.http.Send(ctx, "register", upstream.Request{
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Body:        body,
		ContentType: "application/json",
		AuditBody:   auditUser(reg.Username),
	})
	return err
}

// auditUser keeps passwords out of the audit log.
func auditUser(username string) []byte {
	b, _ := json.Marshal(map[string]string{"username": username})
	return b
}

// FilterQuery encodes filters the way the customers service reads them.
// Every key is sent, empty or not.
func FilterQuery(f directory.Filters) url.Values {
	return url.Values{
		"days":            {f.Days},
		"minOrders":       {f.MinOrders},
		"deliveryPartner": {f.DeliveryPartner},
		"minItemsInOrder": {f.MinItemsInOrder},
	}
}
