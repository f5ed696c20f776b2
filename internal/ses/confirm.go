package ses

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultConfirmTimeout = 10 * time.Second

// SubscriptionConfirmer visits the SubscribeURL of an SNS subscription
// confirmation so the topic starts delivering to this endpoint.
type SubscriptionConfirmer struct {
	client *resty.Client
}

func NewSubscriptionConfirmer(client *resty.Client) *SubscriptionConfirmer {
	if client == nil {
		client = resty.New()
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultConfirmTimeout)
	}
	client.SetRetryCount(0)

	return &SubscriptionConfirmer{client: client}
}

func (c *SubscriptionConfirmer) Confirm(ctx context.Context, env Envelope) error {
	if env.Type != TypeSubscriptionConfirmation {
		return fmt.Errorf("envelope type %q is not a subscription confirmation", env.Type)
	}

	subscribeURL := strings.TrimSpace(env.SubscribeURL)
	parsed, err := url.ParseRequestURI(subscribeURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid SubscribeURL %q", env.SubscribeURL)
	}

	resp, err := c.client.R().SetContext(ctx).Get(subscribeURL)
	if err != nil {
		return fmt.Errorf("failed to confirm subscription: %w", err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("subscription confirmation returned status %d", resp.StatusCode())
	}
	return nil
}
