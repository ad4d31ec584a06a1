package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agentrun/agentrun/pkg/models"
)

// PushConfig configures the mobile push adapter. None of the retrieved
// examples vendor an APNs/FCM client, so delivery goes through a plain
// HTTP POST to a push-gateway endpoint (the shape any FCM/APNs proxy
// exposes) using net/http, the same client the other internal packages
// already reach for plain HTTP calls.
type PushConfig struct {
	Endpoint string
	APIKey   string
}

type pushPayload struct {
	DeviceToken string `json:"device_token"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// PushAdapter implements channels.OutboundAdapter for mobile push
// notifications.
type PushAdapter struct {
	cfg    PushConfig
	client *http.Client
}

// NewPushAdapter constructs a PushAdapter.
func NewPushAdapter(cfg PushConfig, client *http.Client) *PushAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &PushAdapter{cfg: cfg, client: client}
}

// Type implements channels.Adapter.
func (a *PushAdapter) Type() models.ChannelType { return models.ChannelMobilePush }

// Send implements channels.OutboundAdapter. The device token is carried
// in msg.ChannelID.
func (a *PushAdapter) Send(ctx context.Context, msg *models.Message) error {
	if msg.ChannelID == "" {
		return fmt.Errorf("push send: device token required in message channel_id")
	}

	body, err := json.Marshal(pushPayload{DeviceToken: msg.ChannelID, Title: "Agent notification", Body: msg.Content})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}
	return nil
}
