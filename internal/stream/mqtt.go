package stream

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/nearlist/nearlist/internal/models"
)

// MQTTStream implements Publisher and Source over an MQTT broker. Creation
// events go out plain; live snapshots are retained so a feed that subscribes
// late still receives the current listing set immediately.
type MQTTStream struct {
	client mqtt.Client
}

// ConnectMQTT connects to the broker at the given address.
func ConnectMQTT(brokerURL, clientID string) (*MQTTStream, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(fmt.Sprintf("%s-%d", clientID, time.Now().UnixNano())).
		SetOrderMatters(false).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", brokerURL, token.Error())
	}
	return &MQTTStream{client: client}, nil
}

// PublishCreated emits one listing-creation event.
func (s *MQTTStream) PublishCreated(event models.ListingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal created event: %w", err)
	}
	token := s.client.Publish(TopicCreated, 1, false, payload)
	token.Wait()
	return token.Error()
}

// PublishLiveSnapshot emits the current status=live listing set, retained.
func (s *MQTTStream) PublishLiveSnapshot(listings []models.ListingEvent) error {
	payload, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("marshal live snapshot: %w", err)
	}
	token := s.client.Publish(TopicLive, 1, true, payload)
	token.Wait()
	return token.Error()
}

// SubscribeCreated registers a handler for listing-creation events.
func (s *MQTTStream) SubscribeCreated(handler CreatedHandler) (Subscription, error) {
	token := s.client.Subscribe(TopicCreated, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var event models.ListingEvent
		if err := json.Unmarshal(msg.Payload(), &event); err != nil {
			log.WithError(err).Warn("Dropping malformed created event")
			return
		}
		handler(event)
	})
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &mqttSubscription{client: s.client, topic: TopicCreated}, nil
}

// SubscribeLive registers a handler for live listing snapshots.
func (s *MQTTStream) SubscribeLive(handler SnapshotHandler) (Subscription, error) {
	token := s.client.Subscribe(TopicLive, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var listings []models.ListingEvent
		if err := json.Unmarshal(msg.Payload(), &listings); err != nil {
			log.WithError(err).Warn("Dropping malformed live snapshot")
			return
		}
		handler(listings)
	})
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &mqttSubscription{client: s.client, topic: TopicLive}, nil
}

// Close disconnects from the broker.
func (s *MQTTStream) Close() {
	s.client.Disconnect(250)
}

type mqttSubscription struct {
	client mqtt.Client
	topic  string
	once   sync.Once
}

func (s *mqttSubscription) Close() {
	s.once.Do(func() {
		token := s.client.Unsubscribe(s.topic)
		token.Wait()
		if err := token.Error(); err != nil {
			log.WithError(err).WithField("topic", s.topic).Warn("Unsubscribe failed")
		}
	})
}
