package publisher

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
)

// Default publisher constants.
const (
	DefaultTopic          = "status"
	DefaultClientPrefix   = "ctf-status"
	DefaultConnectTimeout = 5 * time.Second
	DefaultPublishTimeout = 5 * time.Second
	DefaultThreshold      = 3
	maxQoS                = 2
)

// Option applies a configuration option to the MQTT publisher.
type Option func(*MQTT)

// WithTopic sets the publish topic.
func WithTopic(topic string) Option {
	return func(p *MQTT) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithQoS sets the MQTT quality of service, 0 to 2.
func WithQoS(qos int) Option {
	return func(p *MQTT) {
		if qos >= 0 && qos <= maxQoS {
			p.qos = byte(qos)
		}
	}
}

// WithRetained marks published messages as retained, so late subscribers get
// the latest status on connect.
func WithRetained(retained bool) Option {
	return func(p *MQTT) {
		p.retained = retained
	}
}

// WithClientPrefix sets the prefix of the per-event client id.
func WithClientPrefix(prefix string) Option {
	return func(p *MQTT) {
		if prefix != "" {
			p.clientPrefix = prefix
		}
	}
}

// WithConnectTimeout bounds the broker connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *MQTT) {
		if d > 0 {
			p.connectTimeout = d
		}
	}
}

// WithPublishTimeout bounds the publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *MQTT) {
		if d > 0 {
			p.publishTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the publisher.
func WithLogger(l logger.Logger) Option {
	return func(p *MQTT) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClientFactory replaces paho's client constructor.
func WithClientFactory(newClient func(*mqtt.ClientOptions) mqtt.Client) Option {
	return func(p *MQTT) {
		if newClient != nil {
			p.newClient = newClient
		}
	}
}
