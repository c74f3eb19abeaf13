// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/leveler/internal/imu"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic, retained, payload.([]byte)})
	return &mqtt.DummyToken{}
}

func TestStoreSequence(t *testing.T) {
	var s Store
	_, ok := s.Latest()
	assert.False(t, ok)

	s.Put(Frame{Duty: 10})
	s.Put(Frame{Duty: 1340})
	f, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, uint16(1340), f.Duty)

	s.SetStopped(true, 0x00)
	f, _ = s.Latest()
	assert.Equal(t, uint64(3), f.Seq)
	assert.True(t, f.Stopped)

	// no change, no new sequence
	s.SetStopped(true, 0x00)
	f, _ = s.Latest()
	assert.Equal(t, uint64(3), f.Seq)
}

func TestMQTTPublisherPublishesOnlyNewFrames(t *testing.T) {
	store := &Store{}
	pub := &fakePublisher{}
	p := NewMQTTPublisher(pub, store, "leveler/sample", time.Second, nil)

	sent, err := p.PublishLatest()
	require.NoError(t, err)
	assert.False(t, sent)

	store.Put(Frame{Sample: imu.ScaledSample{Ay: -1}, State: "BELOW_THRESHOLD", Pattern: 0x01, Duty: 10})
	sent, err = p.PublishLatest()
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = p.PublishLatest()
	require.NoError(t, err)
	assert.False(t, sent)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "leveler/sample", pub.msgs[0].topic)
	assert.True(t, pub.msgs[0].retained)

	var f Frame
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &f))
	assert.Equal(t, -1.0, f.Sample.Ay)
	assert.Equal(t, uint16(10), f.Duty)
	assert.Equal(t, "BELOW_THRESHOLD", f.State)
}

func TestHubBroadcast(t *testing.T) {
	store := &Store{}
	store.Put(Frame{Duty: 1050, State: "SETTLE"})
	hub := NewHub(store, time.Hour, nil)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// latest frame on connect
	var f Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, uint16(1050), f.Duty)

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	store.Put(Frame{Duty: 10, State: "BELOW_THRESHOLD"})
	hub.Broadcast()
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, uint16(10), f.Duty)
	assert.Equal(t, uint64(2), f.Seq)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMirrorsRejectNonPositiveInterval(t *testing.T) {
	store := &Store{}
	hub := NewHub(store, 0, nil)
	assert.Equal(t, DefaultInterval, hub.interval)
	p := NewMQTTPublisher(&fakePublisher{}, store, "leveler/sample", -time.Second, nil)
	assert.Equal(t, DefaultInterval, p.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() { _ = hub.Run(ctx) })
	assert.NotPanics(t, func() { _ = p.Run(ctx) })
}
