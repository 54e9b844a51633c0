package terminal

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/swipeless/payment-relay/internal/domain"
)

const (
	actionHIT        = "doScrHIT"
	txnTypePurchase  = "Purchase"
	txnTypeStatus    = "Status"
	maxResponseBytes = 1 << 20
	maxErrorSnippet  = 256

	DefaultPosName  = "Vend"
	DefaultVendorID = "1"
	DefaultTimeout  = 15 * time.Second
)

// Config holds the gateway endpoint and fixed point-of-sale identifiers
type Config struct {
	URL      string
	PosName  string
	VendorID string
	Timeout  time.Duration
}

// Client talks to the terminal gateway over HTTP using the SCR XML protocol.
// It holds no per-transaction state and is safe for concurrent use.
type Client struct {
	url        string
	posName    string
	vendorID   string
	httpClient *http.Client
}

var _ domain.TerminalGateway = (*Client)(nil)

// NewClient creates a gateway client.
// If httpClient is nil, a client with cfg.Timeout (or DefaultTimeout) is used.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("terminal gateway url is required")
	}
	if cfg.PosName == "" {
		cfg.PosName = DefaultPosName
	}
	if cfg.VendorID == "" {
		cfg.VendorID = DefaultVendorID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		url:        cfg.URL,
		posName:    cfg.PosName,
		vendorID:   cfg.VendorID,
		httpClient: httpClient,
	}, nil
}

// scrRequest is the request envelope. Field order is the wire order.
type scrRequest struct {
	XMLName  xml.Name `xml:"Scr"`
	Action   string   `xml:"action,attr"`
	User     string   `xml:"user,attr"`
	Key      string   `xml:"key,attr"`
	TxnType  string   `xml:"TxnType"`
	Amount   string   `xml:"Amount,omitempty"`
	TxnRef   string   `xml:"TxnRef"`
	Cur      string   `xml:"Cur,omitempty"`
	Station  int      `xml:"Station"`
	DeviceID string   `xml:"DeviceId,omitempty"`
	PosName  string   `xml:"PosName,omitempty"`
	VendorID string   `xml:"VendorId,omitempty"`
}

// scrResponse accepts any root element
type scrResponse struct {
	TxnRef      *string `xml:"TxnRef"`
	TxnStatusID *string `xml:"TxnStatusId"`
	Complete    *string `xml:"Complete"`
}

// Purchase starts a purchase on the terminal attached to the request's station
func (c *Client) Purchase(ctx context.Context, creds domain.Credentials, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	body := scrRequest{
		Action:   actionHIT,
		User:     creds.User,
		Key:      creds.Key,
		TxnType:  txnTypePurchase,
		Amount:   req.Amount.StringFixed(2),
		TxnRef:   req.TransactionReference,
		Cur:      req.Currency,
		Station:  req.StationID,
		DeviceID: req.DeviceID(),
		PosName:  c.posName,
		VendorID: c.vendorID,
	}
	return c.do(ctx, body)
}

// Status polls the gateway for the current step of a transaction
func (c *Client) Status(ctx context.Context, creds domain.Credentials, transactionReference string, stationID int) (*domain.TransactionResult, error) {
	body := scrRequest{
		Action:  actionHIT,
		User:    creds.User,
		Key:     creds.Key,
		TxnType: txnTypeStatus,
		TxnRef:  transactionReference,
		Station: stationID,
	}
	return c.do(ctx, body)
}

func (c *Client) do(ctx context.Context, body scrRequest) (*domain.TransactionResult, error) {
	payload, err := xml.Marshal(body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/xml")
	httpReq.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode/100 != 2 {
		return nil, &domain.TransportError{
			StatusCode: resp.StatusCode,
			Body:       snippet(respBody),
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	return parseResponse(respBody)
}

func parseResponse(body []byte) (*domain.TransactionResult, error) {
	var parsed scrResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.ProtocolError{Reason: "response is not well-formed XML", Err: err}
	}

	if parsed.TxnRef == nil || strings.TrimSpace(*parsed.TxnRef) == "" {
		return nil, &domain.ProtocolError{Reason: "response has no TxnRef"}
	}

	step := domain.TerminalStepUnknown
	if parsed.TxnStatusID != nil && strings.TrimSpace(*parsed.TxnStatusID) != "" {
		step = strings.TrimSpace(*parsed.TxnStatusID)
	}

	return &domain.TransactionResult{
		TransactionReference: strings.TrimSpace(*parsed.TxnRef),
		TerminalStep:         step,
		Done:                 parsed.Complete != nil && *parsed.Complete == "1",
	}, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return strconv.Quote(s)
}
