package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wattboard/wattboard/agent/internal/config"
	"github.com/wattboard/wattboard/pkg/meterpb"
)

// ErrNoMessage is reported by an mqtt meter before its first message.
var ErrNoMessage = errors.New("scraper: no mqtt message received yet")

// Payload is the JSON document an mqtt meter publishes. Either Consumption
// or EnergyTotal must be present.
type Payload struct {
	Timestamp   time.Time               `json:"timestamp"`
	Consumption *float64                `json:"consumption"`
	EnergyTotal *float64                `json:"energy_total"`
	Baseline    float64                 `json:"baseline"`
	Previous    float64                 `json:"previous"`
	Predicted   float64                 `json:"predicted"`
	Breakdown   []meterpb.Category      `json:"breakdown"`
	Forecast    []meterpb.ForecastPoint `json:"forecast"`
}

type message struct {
	payload    Payload
	receivedAt time.Time
	err        error
}

// Subscriber holds one broker connection shared by all mqtt meters and keeps
// the latest message per topic.
type Subscriber struct {
	client mqtt.Client
	qos    byte
	now    func() time.Time

	mu     sync.Mutex
	topics map[string]struct{}
	latest map[string]message
}

func newSubscriber(qos byte) *Subscriber {
	return &Subscriber{
		qos:    qos,
		now:    time.Now,
		topics: make(map[string]struct{}),
		latest: make(map[string]message),
	}
}

// Connect starts connecting to the broker in cfg and returns immediately.
// The client retries in the background and re-subscribes every tracked
// topic on each (re)connect, so meters report ErrNoMessage until the broker
// is reachable.
func Connect(cfg config.MQTTConfig) *Subscriber {
	s := newSubscriber(byte(cfg.QoS))

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			slog.Info("scraper: mqtt connected", "broker", cfg.Broker)
			s.subscribeAll(c)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("scraper: mqtt connection lost", "broker", cfg.Broker, "err", err)
		})

	s.client = mqtt.NewClient(opts)
	s.client.Connect()
	slog.Info("scraper: mqtt connecting", "broker", cfg.Broker, "client_id", cfg.ClientID)
	return s
}

// Track subscribes to topic now if connected, and on every reconnect.
func (s *Subscriber) Track(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()

	if s.client != nil && s.client.IsConnected() {
		s.subscribe(s.client, topic)
	}
}

// Close disconnects from the broker, waiting up to 250ms for in-flight work.
func (s *Subscriber) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) subscribeAll(c mqtt.Client) {
	s.mu.Lock()
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	s.mu.Unlock()

	for _, t := range topics {
		s.subscribe(c, t)
	}
}

func (s *Subscriber) subscribe(c mqtt.Client, topic string) {
	token := c.Subscribe(topic, s.qos, func(_ mqtt.Client, m mqtt.Message) {
		s.handle(m.Topic(), m.Payload())
	})
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			slog.Error("scraper: mqtt subscribe failed", "topic", topic, "err", err)
			return
		}
		slog.Debug("scraper: mqtt subscribed", "topic", topic)
	}()
}

// handle decodes one message. A malformed payload replaces the previous
// message so the meter reports the error instead of stale data.
func (s *Subscriber) handle(topic string, raw []byte) {
	msg := message{receivedAt: s.now()}
	if err := json.Unmarshal(raw, &msg.payload); err != nil {
		msg.err = fmt.Errorf("decode payload: %w", err)
		slog.Warn("scraper: malformed mqtt payload", "topic", topic, "err", err)
	}

	s.mu.Lock()
	s.latest[topic] = msg
	s.mu.Unlock()
}

func (s *Subscriber) last(topic string) (message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.latest[topic]
	return m, ok
}

type mqttScraper struct {
	meter config.Meter
	sub   *Subscriber
}

// Scrape returns the latest message on the meter's topic. The sample time
// is the payload timestamp, or the receive time when the payload has none,
// so a topic that went quiet yields the same sample again.
func (s *mqttScraper) Scrape(_ context.Context) (*Sample, error) {
	res := newSample(s.meter)

	msg, ok := s.sub.last(s.meter.Topic)
	switch {
	case !ok:
		res.Err = fmt.Errorf("mqtt meter %q: %w", s.meter.BuildingID, ErrNoMessage)
		return res, nil
	case msg.err != nil:
		res.Err = fmt.Errorf("mqtt meter %q: %w", s.meter.BuildingID, msg.err)
		return res, nil
	case s.meter.Stale > 0 && s.sub.now().Sub(msg.receivedAt) > s.meter.Stale:
		res.Err = fmt.Errorf("mqtt meter %q: no message for %s", s.meter.BuildingID,
			s.sub.now().Sub(msg.receivedAt).Round(time.Second))
		return res, nil
	}

	p := msg.payload
	if p.Consumption == nil && p.EnergyTotal == nil {
		res.Err = fmt.Errorf("mqtt meter %q: payload has neither consumption nor energy_total", s.meter.BuildingID)
		return res, nil
	}

	res.ScrapedAt = msg.receivedAt.UTC()
	if !p.Timestamp.IsZero() {
		res.ScrapedAt = p.Timestamp.UTC()
	}
	res.Consumption = p.Consumption
	res.EnergyTotal = p.EnergyTotal
	res.Baseline = p.Baseline
	res.Previous = p.Previous
	res.Predicted = p.Predicted
	res.Breakdown = p.Breakdown
	res.Forecast = p.Forecast
	return res, nil
}
