// cmd/bridge/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"telemetry-bridge/internal/config"
	"telemetry-bridge/internal/discovery"
	serialdiscovery "telemetry-bridge/internal/discovery/serial"
	usbdiscovery "telemetry-bridge/internal/discovery/usb"
	"telemetry-bridge/internal/display"
	"telemetry-bridge/internal/handler"
	"telemetry-bridge/internal/permission"
	"telemetry-bridge/internal/protocol/serial"
	"telemetry-bridge/internal/routes"
	"telemetry-bridge/internal/supervisor"
	"telemetry-bridge/internal/telemetry"
	"telemetry-bridge/internal/utils"
)

const shutdownTimeout = 30 * time.Second

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	bus        *handler.EventBus
	websocket  *handler.WebSocketHandler
	supervisor *supervisor.Supervisor
	watcher    *discovery.Watcher
	opener     *serial.Opener
	prompt     *permission.PromptGate

	httpForwarder *telemetry.HTTPForwarder
	mqttForwarder *telemetry.MQTTForwarder
	forwarder     telemetry.MultiForwarder

	wg sync.WaitGroup
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "telemetry-bridge")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg.Redacted())

	app := &Application{
		config: cfg,
		logger: logger,
		bus:    handler.NewEventBus(logger),
	}

	if err := app.initializeForwarders(); err != nil {
		return nil, fmt.Errorf("failed to initialize forwarders: %w", err)
	}

	if err := app.initializeSupervisor(); err != nil {
		return nil, fmt.Errorf("failed to initialize supervisor: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeForwarders creates the collector forwarders
func (app *Application) initializeForwarders() error {
	app.httpForwarder = telemetry.NewHTTPForwarder(app.config.Collector, app.logger)
	app.httpForwarder.OnComplete = app.bus.ForwardCompleted
	app.forwarder = telemetry.MultiForwarder{app.httpForwarder}

	if app.config.Collector.MQTT.Enabled {
		app.mqttForwarder = telemetry.NewMQTTForwarder(app.config.Collector.MQTT, app.logger)
		app.mqttForwarder.OnComplete = app.bus.ForwardCompleted

		ctx, cancel := context.WithTimeout(context.Background(), app.config.Collector.MQTT.ConnectTimeout)
		defer cancel()
		if err := app.mqttForwarder.Connect(ctx); err != nil {
			// The client keeps reconnecting; publishes fail until it does
			app.logger.Warn("MQTT broker unavailable", zap.Error(err))
		}
		app.forwarder = append(app.forwarder, app.mqttForwarder)
	}

	app.logger.Info("Forwarders initialized",
		zap.String("collector", app.config.Collector.URL),
		zap.Bool("mqtt_enabled", app.config.Collector.MQTT.Enabled),
	)
	return nil
}

// initializeSupervisor wires discovery, permission and the serial opener
func (app *Application) initializeSupervisor() error {
	deviceCfg := app.config.Device

	ports := serialdiscovery.NewScanner(app.logger)
	var registry discovery.Registry = ports
	if deviceCfg.Source == "usb" {
		registry = usbdiscovery.NewScanner(app.logger, &usbdiscovery.Config{
			EnableDebug: deviceCfg.USBDebug,
			KnownOnly:   true,
		})
	}

	vendorIDs, err := deviceCfg.ParsedVendorIDs()
	if err != nil {
		return err
	}
	selector := discovery.NewSelector(deviceCfg.SelectionPolicy, vendorIDs)

	var gate permission.Gate
	switch app.config.Permission.Mode {
	case "prompt":
		var notifier permission.Notifier
		if app.config.Permission.Notify {
			notifier = permission.DesktopNotifier{Logger: app.logger}
		}
		app.prompt = permission.NewPromptGate(notifier, app.bus.PermissionRequested, app.logger)
		gate = app.prompt
	default:
		gate = permission.NewAccessGate(app.logger)
	}

	app.opener = serial.NewOpener(serial.Options{
		ReadTimeout:  deviceCfg.ReadTimeout,
		MaxFrameSize: deviceCfg.MaxFrameSize,
		FrameBuffer:  deviceCfg.FrameBuffer,
	}, ports, app.logger)

	app.supervisor = supervisor.New(supervisor.Deps{
		Registry:  registry,
		Selector:  selector,
		Gate:      gate,
		Opener:    supervisor.SerialOpener(app.opener),
		Forwarder: app.forwarder,
		Display:   display.Multi{display.NewConsole(app.logger), app.bus},
		Observer:  app.bus,
		Logger:    app.logger,
	}, supervisor.DefaultOptions())

	app.watcher = discovery.NewWatcher(registry, deviceCfg.DiscoveryInterval, app.supervisor.Post, app.logger)

	app.logger.Info("Supervisor initialized",
		zap.String("source", deviceCfg.Source),
		zap.String("selection_policy", selector.Name()),
		zap.String("permission_mode", app.config.Permission.Mode),
	)
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	if !app.config.Server.Enabled {
		app.logger.Info("HTTP server disabled")
		return nil
	}

	app.websocket = handler.NewWebSocketHandler(app.bus, app.supervisor, app.config.Server.AllowedOrigins, app.logger)

	var prompt handler.PermissionPrompt
	if app.prompt != nil {
		prompt = app.prompt
	}

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		handler.NewHealthHandler(app.supervisor, app.supervisor, app.config, app.logger),
		handler.NewBridgeHandler(app.supervisor, app.supervisor, prompt, app.logger),
		app.websocket,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
	return nil
}

// Start runs the bridge until SIGINT or SIGTERM
func (app *Application) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.bus.Start()

	app.run(func() {
		if err := app.supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error("Supervisor stopped", zap.Error(err))
		}
	})
	app.run(func() { app.watcher.Run(ctx) })

	if app.server != nil {
		app.run(func() { app.websocket.Run(ctx) })

		go func() {
			app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
			if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	app.logger.Info("Received shutdown signal")
	app.shutdown()
	return nil
}

func (app *Application) run(fn func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		fn()
	}()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "telemetry-bridge")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if app.server != nil {
		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Error("HTTP server shutdown error", zap.Error(err))
		} else {
			app.logger.Info("HTTP server stopped")
		}
	}

	// Supervisor, watcher and live view stop on the cancelled signal context
	app.wg.Wait()

	if err := app.forwarder.Wait(ctx); err != nil {
		app.logger.Warn("In-flight submissions abandoned", zap.Error(err))
	}
	if app.mqttForwarder != nil {
		app.mqttForwarder.Close()
	}
	app.bus.Close()

	app.logger.Info("Application shutdown completed",
		zap.Int("open_links", app.opener.ActiveLinks()),
	)

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
