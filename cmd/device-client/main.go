// Package main is the entry point for the hub device client.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/iothub-device-go/internal/config"
	"github.com/unklstewy/iothub-device-go/pkg/device"
	"github.com/unklstewy/iothub-device-go/pkg/healthcheck"
	"github.com/unklstewy/iothub-device-go/pkg/iothub"
	"github.com/unklstewy/iothub-device-go/pkg/mqtt"
	"github.com/unklstewy/iothub-device-go/pkg/provisioning"
	"github.com/unklstewy/iothub-device-go/pkg/sas"
)

// registrationKeyName is the policy name symmetric key enrollments sign with.
const registrationKeyName = "registration"

func main() {
	// A missing .env is fine, the environment may already be set.
	envErr := godotenv.Load()

	configPath := flag.String("config", os.Getenv("IOTDEVICE_CONFIG"), "Path to YAML configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Initialize logger
	var logger *zap.Logger
	switch cfg.LogLevel {
	case "debug":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting device client")
	if envErr != nil {
		logger.Debug("No .env file loaded", zap.Error(envErr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Provisioning.Enabled {
		if err := provision(ctx, cfg, logger); err != nil {
			logger.Fatal("Provisioning failed", zap.Error(err))
		}
	}

	tokens := &sas.Provider{
		ResourceURI: iothub.ResourceURI(cfg.Hub.Hostname, cfg.Hub.DeviceID, cfg.Hub.ModuleID),
		Key:         cfg.Hub.SharedAccessKey,
		Lifetime:    cfg.Hub.TokenLifetime,
	}
	username := iothub.Username(cfg.Hub.Hostname, cfg.Hub.DeviceID, cfg.Hub.ModuleID)

	hubConn, err := mqtt.NewClient(&mqtt.Config{
		BrokerURL: cfg.MQTT.BrokerURL(cfg.Hub.Hostname),
		ClientID:  iothub.ClientID(cfg.Hub.DeviceID, cfg.Hub.ModuleID),
		Credentials: func() (string, string) {
			token, err := tokens.Token()
			if err != nil {
				logger.Error("Cannot generate SAS token", zap.Error(err))
				return username, ""
			}
			return username, token
		},
		KeepAlive:            cfg.MQTT.KeepAlive,
		ConnectTimeout:       cfg.MQTT.ConnectTimeout,
		AutoReconnect:        true,
		MaxReconnectInterval: cfg.MQTT.MaxReconnectInterval,
		CleanSession:         true,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create MQTT client", zap.Error(err))
	}

	client, err := device.New(hubConn, device.Options{
		DeviceID: cfg.Hub.DeviceID,
		ModuleID: cfg.Hub.ModuleID,
		QoS:      byte(cfg.MQTT.QoS),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create device client", zap.Error(err))
	}
	registerHandlers(client, logger)

	if err := hubConn.Connect(); err != nil {
		logger.Fatal("Failed to connect to hub", zap.Error(err))
	}
	defer hubConn.Disconnect()

	if err := client.Start(ctx); err != nil {
		logger.Fatal("Failed to start device client", zap.Error(err))
	}

	if twin, err := client.GetTwin(ctx); err != nil {
		logger.Warn("Failed to fetch twin", zap.Error(err))
	} else {
		logger.Info("Twin received", zap.Any("desired", twin.Desired))
	}

	startup := iothub.NewMessage([]byte(`{"event":"started"}`))
	startup.ContentType = "application/json"
	startup.ContentEncoding = "utf-8"
	if err := client.SendTelemetry(ctx, startup); err != nil {
		logger.Warn("Failed to send startup telemetry", zap.Error(err))
	}

	monitor := healthcheck.NewMonitor(logger, cfg.Health.Interval)
	monitor.Register(client)
	reporter := healthcheck.NewReporter(func(ctx context.Context, patch map[string]any) error {
		_, err := client.PatchReportedProperties(ctx, patch)
		return err
	}, logger)
	reporter.Report(ctx, monitor.Check(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitor.Run(gctx, reporter.Report)
		return nil
	})
	g.Go(func() error {
		return waitForSignal(gctx, logger)
	})

	logger.Info("Device client running, press Ctrl+C to stop")
	if err := g.Wait(); err != nil {
		logger.Info("Shutting down", zap.Error(err))
	}
}

// waitForSignal returns when SIGINT or SIGTERM arrives or ctx ends.
func waitForSignal(ctx context.Context, logger *zap.Logger) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		return fmt.Errorf("received signal %s", sig)
	case <-ctx.Done():
		return nil
	}
}

// registerHandlers installs the default message, method and twin handlers.
func registerHandlers(client *device.Client, logger *zap.Logger) {
	logMessage := func(msg *iothub.Message) {
		logger.Info("Message received",
			zap.String("message_id", msg.MessageID),
			zap.String("input", msg.InputName),
			zap.Int("size", len(msg.Payload)),
			zap.Any("properties", msg.CustomProperties))
	}
	client.OnMessage(logMessage)
	client.OnInputMessage(logMessage)

	client.OnMethod("ping", func(ctx context.Context, payload []byte) (int, []byte, error) {
		return 200, []byte(`{"pong":true}`), nil
	})

	client.OnDesiredPropertiesPatch(func(version string, patch []byte) {
		logger.Info("Desired properties updated",
			zap.String("version", version),
			zap.ByteString("patch", patch))
	})
}

// provision registers with the provisioning service and points the hub
// settings at the assigned hub.
func provision(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	p := cfg.Provisioning
	token, err := sas.Token(
		provisioning.ResourceURI(p.IDScope, p.RegistrationID),
		p.SymmetricKey,
		registrationKeyName,
		time.Now().Add(cfg.Hub.TokenLifetime))
	if err != nil {
		return err
	}

	conn, err := mqtt.NewClient(&mqtt.Config{
		BrokerURL:      cfg.MQTT.BrokerURL(p.Endpoint),
		ClientID:       p.RegistrationID,
		Username:       provisioning.Username(p.IDScope, p.RegistrationID),
		Password:       token,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		CleanSession:   true,
	}, logger)
	if err != nil {
		return err
	}
	if err := conn.Connect(); err != nil {
		return err
	}
	defer conn.Disconnect()

	regCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var payload any
	if len(p.Payload) > 0 {
		payload = p.Payload
	}
	result, err := provisioning.NewClient(conn, logger).Register(regCtx, p.RegistrationID, payload)
	if err != nil {
		return err
	}

	cfg.Hub.Hostname = result.State.AssignedHub
	cfg.Hub.DeviceID = result.State.DeviceID
	cfg.Hub.SharedAccessKey = p.SymmetricKey

	if len(result.State.Payload) > 0 {
		var returned map[string]any
		if err := json.Unmarshal(result.State.Payload, &returned); err == nil {
			logger.Info("Provisioning payload", zap.Any("payload", returned))
		}
	}
	return nil
}
