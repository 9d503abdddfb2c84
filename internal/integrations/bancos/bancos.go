package bancos

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rlagos/cobranzas-service/internal/config"
)

// Client handles integration with the bank reference feed that reports
// the total amount booked against each loan
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new bank reference client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.BankRefURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// fetch requests the XML payment statement for one loan
func (c *Client) fetch(ctx context.Context, loanID int64) ([]byte, error) {
	url := fmt.Sprintf("%s/prestamos/%d/abonos", c.url, loanID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	c.log.Debugf("bank reference XML response: %s", string(body))

	return body, nil
}

// parseBookedTotal sums the abono entries of the statement
func (c *Client) parseBookedTotal(rawBody []byte) (decimal.Decimal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse XML: %v", err)
	}

	entries := doc.FindElements("//estadoCuenta/abonos/abono")
	if len(entries) == 0 {
		return decimal.Zero, fmt.Errorf("no booked payments found in XML")
	}

	total := decimal.Zero
	for _, entry := range entries {
		montoElement := entry.FindElement("./monto")
		if montoElement == nil {
			return decimal.Zero, fmt.Errorf("monto element not found in XML")
		}
		monto, err := decimal.NewFromString(montoElement.Text())
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse monto: %v", err)
		}
		total = total.Add(monto)
	}

	return total, nil
}

// GetBookedTotal retrieves the externally booked payment total for a loan
func (c *Client) GetBookedTotal(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	body, err := c.fetch(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}

	total, err := c.parseBookedTotal(body)
	if err != nil {
		return decimal.Zero, err
	}

	c.log.Infof("Bank reference reports %s booked for loan %d", total.StringFixed(2), loanID)
	return total, nil
}
