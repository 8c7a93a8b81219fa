// Package mqtt publishes sensor states and attributes to a broker so
// automation hosts can subscribe instead of polling the API server.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/angas/pvpc-go/pvpc"
	"github.com/angas/pvpc-go/types"
)

type Publisher struct {
	client      paho.Client
	logger      *slog.Logger
	topicPrefix string
}

func New(broker string, port int16, username, password, topicPrefix string) *Publisher {
	logger := slog.Default().With("module", "mqtt")

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID("pvpc")
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(client paho.Client) {
		logger.Info("MQTT connected")
	}
	opts.OnConnectionLost = func(client paho.Client, err error) {
		logger.Warn("MQTT connection lost", slog.Any("error", err))
	}

	paho.CRITICAL = newPahoLogger(logger, slog.LevelError)
	paho.ERROR = newPahoLogger(logger, slog.LevelError)
	paho.WARN = newPahoLogger(logger, slog.LevelWarn)

	return &Publisher{
		client:      paho.NewClient(opts),
		logger:      logger,
		topicPrefix: topicPrefix,
	}
}

func (p *Publisher) Connect() error {
	p.logger.Debug("connecting MQTT client")
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}

type sensorMessage struct {
	State      *float64       `json:"state"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// PublishSensors pushes one retained message per sensor, so subscribers
// joining between cycles still see the latest state.
func (p *Publisher) PublishSensors(handler *pvpc.Handler, keys []types.SensorKey) {
	now := time.Now().UTC()
	for _, key := range keys {
		state := handler.State(key)
		msg := sensorMessage{
			Available:  state.IsValid(),
			Attributes: handler.Attributes(key),
			UpdatedAt:  now,
		}
		if state.IsValid() {
			value := state.Value()
			msg.State = &value
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			p.logger.Error("failed to marshal sensor message",
				slog.String("sensor", string(key)), slog.Any("error", err))
			continue
		}

		topic := fmt.Sprintf("%s/%s", p.topicPrefix, key)
		if token := p.client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
			p.logger.Warn("failed to publish sensor message",
				slog.String("topic", topic), slog.Any("error", token.Error()))
		}
	}
}
