// Package notify publishes incident notifications after a walkthrough has
// been submitted.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
)

// Notifier announces the incidents of a submitted report.
type Notifier interface {
	NotifyIncidents(ctx context.Context, reportID string, incidents []walkthrough.Incident) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) NotifyIncidents(context.Context, string, []walkthrough.Incident) error { return nil }

// Publisher sends one MQTT message.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// Message is the JSON payload published per incident.
type Message struct {
	ReportID      string               `json:"report_id"`
	IncidentID    string               `json:"incident_id,omitempty"`
	Location      string               `json:"location"`
	DataHall      string               `json:"data_hall"`
	RackNumber    string               `json:"rack_number"`
	PartType      walkthrough.PartType `json:"part_type"`
	Severity      walkthrough.Severity `json:"severity"`
	Description   string               `json:"description"`
	WalkthroughID int                  `json:"walkthrough_id"`
	PublishedAt   time.Time            `json:"published_at"`
}

// MQTTNotifier publishes each incident to <prefix>/incidents/<severity>.
type MQTTNotifier struct {
	pub    Publisher
	prefix string
	qos    byte
	now    func() time.Time
}

// NewMQTTNotifier publishes through pub with QoS 1.
func NewMQTTNotifier(pub Publisher, prefix string) *MQTTNotifier {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "walkthrough"
	}
	return &MQTTNotifier{pub: pub, prefix: prefix, qos: 1, now: time.Now}
}

// Topic returns the topic for severity.
func (n *MQTTNotifier) Topic(severity walkthrough.Severity) string {
	return fmt.Sprintf("%s/incidents/%s", n.prefix, severity)
}

// NotifyIncidents publishes every incident and returns the combined errors.
func (n *MQTTNotifier) NotifyIncidents(ctx context.Context, reportID string, incidents []walkthrough.Incident) error {
	var errs error
	for _, inc := range incidents {
		payload, err := json.Marshal(Message{
			ReportID:      reportID,
			IncidentID:    inc.ID,
			Location:      inc.Location,
			DataHall:      inc.DataHall,
			RackNumber:    inc.RackNumber,
			PartType:      inc.PartType,
			Severity:      inc.Severity,
			Description:   inc.Description,
			WalkthroughID: inc.WalkthroughID,
			PublishedAt:   n.now().UTC(),
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, n.pub.Publish(ctx, n.Topic(inc.Severity), n.qos, false, payload))
	}
	return errs
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Client is a connected paho client.
type Client struct {
	client  mqtt.Client
	timeout time.Duration
}

// Connect dials the broker.
func Connect(cfg MQTTConfig) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts.SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	return &Client{client: client, timeout: timeout}, nil
}

// Publish sends payload and waits for the broker acknowledgement.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	case <-time.After(c.timeout):
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the connection, waiting up to 250ms for in-flight work.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
