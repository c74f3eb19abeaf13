// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/logger"
)

// Publisher is the part of mqtt.Client the publisher needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher mirrors the latest frame to a retained MQTT topic.
type MQTTPublisher struct {
	client   Publisher
	store    *Store
	topic    string
	interval time.Duration
	log      *zap.Logger

	lastSeq uint64
}

// ConnectMQTT connects a client to broker.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// DefaultInterval paces the mirrors when no positive interval is configured.
const DefaultInterval = 100 * time.Millisecond

// NewMQTTPublisher publishes frames from store on topic every interval.
// A non-positive interval selects DefaultInterval.
func NewMQTTPublisher(client Publisher, store *Store, topic string, interval time.Duration, log *zap.Logger) *MQTTPublisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &MQTTPublisher{
		client:   client,
		store:    store,
		topic:    topic,
		interval: interval,
		log:      logger.OrNop(log),
	}
}

// PublishLatest publishes the latest frame if it changed since the last
// call. It reports whether a message was sent.
func (p *MQTTPublisher) PublishLatest() (bool, error) {
	f, ok := p.store.Latest()
	if !ok || f.Seq == p.lastSeq {
		return false, nil
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return false, fmt.Errorf("telemetry: marshal frame: %w", err)
	}
	if token := p.client.Publish(p.topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return false, fmt.Errorf("telemetry: publish %s: %w", p.topic, token.Error())
	}
	p.lastSeq = f.Seq
	return true, nil
}

// Run publishes until ctx is done. Publish errors are logged and retried on
// the next tick.
func (p *MQTTPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("mqtt: publishing frames", zap.String("topic", p.topic), zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.PublishLatest(); err != nil {
				p.log.Warn("mqtt: publish failed", zap.Error(err))
			}
		}
	}
}
