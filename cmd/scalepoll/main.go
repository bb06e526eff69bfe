package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"scalepoll/internal/config"
	"scalepoll/internal/logging"
	"scalepoll/internal/messaging"
	"scalepoll/internal/poller"
	"scalepoll/internal/report"
	"scalepoll/internal/scale"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	path := getenv("SCALEPOLL_CONFIG_PATH", "/etc/scalepoll/config.json")
	mqttURL := getenv("MQTT_URL", "tcp://localhost:1883")

	logging.Init()
	cfg, err := config.Load(path)
	if err != nil {
		logging.Fatal("config error", "error", err)
	}

	logging.Info("loaded config",
		"device", cfg.Device.Name,
		"mode", cfg.Device.Mode,
		"onlyReportOnChange", cfg.OnlyReportOnChange,
	)

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporters := scale.Reporters{report.NewConsole()}

	if cfg.MQTT.Enabled {
		broker := messaging.NewBroker(messaging.BrokerConfig{
			BrokerURL:      mqttURL,
			ClientName:     cfg.Device.Name,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			ConnectTimeout: cfg.MQTT.ConnectTimeout(),
			PublishTimeout: cfg.MQTT.PublishTimeout(),
		})
		if err := broker.Connect(ctx); err != nil {
			logging.Fatal("mqtt connect", "broker", mqttURL, "error", err)
		}
		defer broker.Close(context.Background())
		reporters = append(reporters, messaging.NewReadingPublisher(broker, cfg.Device.Name))
		logging.Info("mqtt publishing enabled", "broker", mqttURL, "prefix", cfg.MQTT.TopicPrefix)
	}

	p, err := poller.Open(cfg, reporters)
	if err != nil {
		logging.Fatal("poller init", "error", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	// Wait for SIGINT/SIGTERM, or for the poller to die on its own
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigCh:
		logging.Info("shutting down", "signal", s.String())
		cancel()
		<-runErr // current cycle finishes before the loop exits
	case err := <-runErr:
		if err != nil {
			logging.Fatal("poller failed", "error", err)
		}
	}
	logging.Info("bye")
}
