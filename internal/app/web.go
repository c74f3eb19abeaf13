// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/config"
	"github.com/relabs-tech/leveler/internal/logger"
	"github.com/relabs-tech/leveler/internal/metrics"
	"github.com/relabs-tech/leveler/internal/mpu6050"
	"github.com/relabs-tech/leveler/internal/telemetry"
)

// defaultWebPort is used by the standalone web server when WEB_SERVER_PORT is 0.
const defaultWebPort = 8080

// RunWeb mirrors the frames published on the sample topic into a local store
// and serves them over HTTP and websocket until ctx is done.
func RunWeb(ctx context.Context, log *zap.Logger) error {
	log = logger.OrNop(log)
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return errors.New("web: MQTT_BROKER is not configured")
	}

	client, err := telemetry.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("web: connected", zap.String("broker", cfg.MQTTBroker))

	store := &telemetry.Store{}
	token := client.Subscribe(cfg.TopicSample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := storeFrame(store, msg.Payload()); err != nil {
			log.Warn("web: bad frame", zap.Error(err))
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}

	port := cfg.WebServerPort
	if port == 0 {
		port = defaultWebPort
	}
	hub := telemetry.NewHub(store, time.Duration(cfg.MQTTPublishInterval)*time.Millisecond, log)
	go func() { _ = hub.Run(ctx) }()

	return serveWeb(ctx, port, NewWebHandler(store, hub, nil, deviceConfig(cfg), log), log)
}

func storeFrame(store *telemetry.Store, payload []byte) error {
	var f telemetry.Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	store.Put(f)
	return nil
}

// registerReport is the /api/registers payload.
type registerReport struct {
	Config       mpu6050.DeviceConfig   `json:"config"`
	OutputRateHz int                    `json:"output_rate_hz"`
	Registers    []mpu6050.RegisterInfo `json:"registers"`
}

// NewWebHandler serves the live frame, the register map, the websocket feed
// and the metrics. hub and m may be nil.
func NewWebHandler(store *telemetry.Store, hub *telemetry.Hub, m *metrics.Metrics, dev mpu6050.DeviceConfig, log *zap.Logger) http.Handler {
	log = logger.OrNop(log)
	mux := http.NewServeMux()

	mux.HandleFunc("/api/sample", func(w http.ResponseWriter, r *http.Request) {
		f, ok := store.Latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, f, log)
	})

	report := registerReport{
		Config:       dev,
		OutputRateHz: dev.OutputRateHz(),
		Registers:    mpu6050.Registers(dev),
	}
	mux.HandleFunc("/api/registers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "registers are read-only", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, report, log)
	})

	if hub != nil {
		mux.Handle("/ws", hub)
	}
	mux.Handle("/metrics", m.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("web: json encode error", zap.Error(err))
	}
}

// serveWeb runs the HTTP server until ctx is done.
func serveWeb(ctx context.Context, port int, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("web: server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}
