package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"telemetry-bridge/internal/config"
	"telemetry-bridge/internal/model"
)

const mqttAppID = "telemetry-bridge"

var ErrMQTTNotConnected = errors.New("mqtt client not connected")

// MQTTForwarder mirrors each frame to an MQTT topic with QoS 0
type MQTTForwarder struct {
	// OnComplete, when set before the first Submit, observes every outcome
	OnComplete func(Completion)

	client         paho.Client
	topic          string
	connectTimeout time.Duration
	logger         *zap.Logger
	wg             sync.WaitGroup
}

// NewMQTTForwarder creates a forwarder for the configured broker. Call
// Connect before submitting.
func NewMQTTForwarder(cfg config.MQTTConfig, logger *zap.Logger) *MQTTForwarder {
	logger = logger.With(zap.String("component", "forwarder"), zap.String("target", cfg.Broker))

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker).
		SetClientID(ClientID()).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	return newMQTTForwarder(paho.NewClient(opts), cfg.Topic, cfg.ConnectTimeout, logger)
}

func newMQTTForwarder(client paho.Client, topic string, connectTimeout time.Duration, logger *zap.Logger) *MQTTForwarder {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &MQTTForwarder{
		client:         client,
		topic:          topic,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// ClientID derives a stable per-host MQTT client ID
func ClientID() string {
	id, err := machineid.ProtectedID(mqttAppID)
	if err != nil || len(id) < 12 {
		return mqttAppID + "-" + uuid.NewString()[:8]
	}
	return mqttAppID + "-" + id[:12]
}

// Connect connects to the broker
func (f *MQTTForwarder) Connect(ctx context.Context) error {
	token := f.client.Connect()
	timeout := f.connectTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connect timed out after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	f.logger.Info("MQTT forwarder connected", zap.String("topic", f.topic))
	return nil
}

// Submit publishes the frame body in the background
func (f *MQTTForwarder) Submit(frame model.RawFrame, _ model.SensorReading) {
	if !f.client.IsConnected() {
		f.complete(Completion{Seq: frame.Seq, Target: f.topic, Err: ErrMQTTNotConnected})
		return
	}

	start := time.Now()
	token := f.client.Publish(f.topic, 0, false, frame.Data)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		token.Wait()
		f.complete(Completion{
			Seq:      frame.Seq,
			Target:   f.topic,
			Err:      token.Error(),
			Duration: time.Since(start),
		})
	}()
}

func (f *MQTTForwarder) complete(result Completion) {
	if result.OK() {
		f.logger.Debug("Reading published", zap.Uint64("seq", result.Seq), zap.String("topic", result.Target))
	} else {
		f.logger.Warn("Failed to publish reading", zap.Uint64("seq", result.Seq), zap.Error(result.Err))
	}
	if f.OnComplete != nil {
		f.OnComplete(result)
	}
}

// Wait blocks until in-flight publishes finish or ctx is done
func (f *MQTTForwarder) Wait(ctx context.Context) error {
	return waitGroup(ctx, &f.wg)
}

// Close disconnects from the broker
func (f *MQTTForwarder) Close() {
	f.client.Disconnect(250)
}
