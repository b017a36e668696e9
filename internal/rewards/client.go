// Package rewards talks to the external rewards server, which knows which
// business a primary card was enrolled under.
package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client answers "is this primary card enrolled with this business?".
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type memberDetails struct {
	BusinessID int64 `json:"BizMbrBizId"`
}

// IsAssociated looks the card up on the rewards server. An unknown card
// (404) is simply not associated; transport failures and other statuses are
// errors.
func (c *Client) IsAssociated(ctx context.Context, cardNumber int64, businessCode string) (bool, error) {
	businessID, err := strconv.ParseInt(businessCode, 10, 64)
	if err != nil {
		return false, nil
	}

	q := url.Values{"card_number": {strconv.FormatInt(cardNumber, 10)}}
	endpoint := c.baseURL + "/cardno/member-details/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("rewards: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("rewards: member details for %d: %w", cardNumber, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("rewards: member details for %d: status %d", cardNumber, resp.StatusCode)
	}

	var details memberDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return false, fmt.Errorf("rewards: decoding member details for %d: %w", cardNumber, err)
	}

	return details.BusinessID == businessID, nil
}
