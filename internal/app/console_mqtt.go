// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/config"
	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/telemetry"
)

// RunConsoleMQTT prints every frame published on the sample topic as the
// serial telemetry line, until ctx is done.
func RunConsoleMQTT(ctx context.Context, w io.Writer, log *zap.Logger) error {
	log = logger.OrNop(log)
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return errors.New("console: MQTT_BROKER is not configured")
	}

	client, err := telemetry.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("console: connected", zap.String("broker", cfg.MQTTBroker))

	token := client.Subscribe(cfg.TopicSample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := printFrame(w, msg.Payload()); err != nil {
			log.Warn("console: bad frame", zap.Error(err))
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Info("console: subscribed", zap.String("topic", cfg.TopicSample))

	<-ctx.Done()
	log.Info("console: shutting down")
	return nil
}

func printFrame(w io.Writer, payload []byte) error {
	var f telemetry.Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	line, err := telemetry.Encode(f.Sample)
	if err != nil {
		return err
	}
	if f.Stopped {
		line = "[STOP]" + line
	}
	_, err = io.WriteString(w, line)
	return err
}
