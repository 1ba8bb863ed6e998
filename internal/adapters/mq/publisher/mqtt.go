// Package publisher delivers rendered status events to subscribers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/model"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/metrics"
)

// disconnectQuiesce is how long paho may spend flushing on disconnect, in ms.
const disconnectQuiesce = 250

// Publisher delivers one status event.
type Publisher interface {
	Publish(ctx context.Context, status types.Status) error
}

// MQTT publishes each status event over its own short-lived broker
// connection: connect, publish, disconnect.
type MQTT struct {
	brokerURL      string
	topic          string
	clientPrefix   string
	qos            byte
	retained       bool
	connectTimeout time.Duration
	publishTimeout time.Duration
	newClient      func(*mqtt.ClientOptions) mqtt.Client
	logger         logger.Logger
}

// NewMQTT creates a publisher for brokerURL, e.g. tcp://localhost:1883.
func NewMQTT(brokerURL string, opts ...Option) *MQTT {
	p := &MQTT{
		brokerURL:      brokerURL,
		topic:          DefaultTopic,
		clientPrefix:   DefaultClientPrefix,
		connectTimeout: DefaultConnectTimeout,
		publishTimeout: DefaultPublishTimeout,
		newClient:      mqtt.NewClient,
		logger:         logger.Get().Named("mqtt"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish implements Publisher.
func (p *MQTT) Publish(ctx context.Context, status types.Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	start := time.Now()
	defer func() {
		metrics.RecordPublishLatency(float64(time.Since(start).Milliseconds()))
	}()

	clientID := p.clientPrefix + "-" + uuid.NewString()
	client := p.newClient(p.clientOptions(clientID))

	if err := await(ctx, client.Connect(), p.connectTimeout); err != nil {
		return fmt.Errorf("%w %s: %v", ErrConnect, p.brokerURL, err)
	}
	defer client.Disconnect(disconnectQuiesce)

	if err := await(ctx, client.Publish(p.topic, p.qos, p.retained, payload), p.publishTimeout); err != nil {
		return fmt.Errorf("%w to %s: %v", ErrPublish, p.topic, err)
	}

	p.logger.Debug(ctx, "status published",
		logger.String("type", status.Type),
		logger.String("topic", p.topic),
		logger.String("client_id", clientID),
		logger.Int("bytes", len(payload)))
	return nil
}

func (p *MQTT) clientOptions(clientID string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(p.brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(p.connectTimeout).
		SetWriteTimeout(p.publishTimeout)
}

// await waits for tok under timeout and ctx, whichever ends first.
func await(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %s", model.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
