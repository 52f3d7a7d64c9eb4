package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	fail map[string]error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, qos byte, _ bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[topic]; err != nil {
		return err
	}
	f.sent = append(f.sent, published{topic: topic, qos: qos, payload: payload})
	return nil
}

func TestNotifyIncidentsTopics(t *testing.T) {
	pub := &fakePublisher{}
	n := NewMQTTNotifier(pub, "/dc/")
	n.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }

	incidents := []walkthrough.Incident{
		{ID: "i1", RackNumber: "2401u12", Severity: walkthrough.SeverityCritical, PartType: walkthrough.PartPSU, WalkthroughID: 3},
		{ID: "i2", RackNumber: "X2402", Severity: walkthrough.SeverityHigh, PartType: walkthrough.PartPDU, WalkthroughID: 3},
	}
	require.NoError(t, n.NotifyIncidents(context.Background(), "r1", incidents))

	require.Len(t, pub.sent, 2)
	assert.Equal(t, "dc/incidents/critical", pub.sent[0].topic)
	assert.Equal(t, "dc/incidents/high", pub.sent[1].topic)
	assert.Equal(t, byte(1), pub.sent[0].qos)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.sent[0].payload, &msg))
	assert.Equal(t, "r1", msg.ReportID)
	assert.Equal(t, "i1", msg.IncidentID)
	assert.Equal(t, "2401u12", msg.RackNumber)
	assert.Equal(t, 3, msg.WalkthroughID)
}

func TestNotifyIncidentsCollectsErrors(t *testing.T) {
	boom := errors.New("broker gone")
	pub := &fakePublisher{fail: map[string]error{"walkthrough/incidents/critical": boom}}
	n := NewMQTTNotifier(pub, "")

	err := n.NotifyIncidents(context.Background(), "r1", []walkthrough.Incident{
		{Severity: walkthrough.SeverityCritical},
		{Severity: walkthrough.SeverityHigh},
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, pub.sent, 1)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.NotifyIncidents(context.Background(), "r", nil))
}
