package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homegate/internal/device"
	"github.com/nerrad567/homegate/internal/infrastructure/mqtt"
)

// Transport is the broker link. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Broadcaster pushes an event to every interactive client.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// TelemetrySink records state changes and commands. *influxdb.Client
// satisfies it, including as a nil pointer.
type TelemetrySink interface {
	WriteDeviceState(deviceID, firmware string, on *bool, online bool)
	WriteDeviceCommand(deviceID, source, payload string)
}

// Metrics counts dispatch and correlation outcomes. *metrics.Recorder
// satisfies it.
type Metrics interface {
	MQTTMessage(kind string)
	MQTTPublish(err error)
	Correlation(kind, outcome string)
	DeviceOnline(deviceID string, online bool)
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) MQTTMessage(string)         {}
func (noopMetrics) MQTTPublish(error)          {}
func (noopMetrics) Correlation(string, string) {}
func (noopMetrics) DeviceOnline(string, bool)  {}

// pendingReply waits for the next message on one topic.
type pendingReply struct {
	done chan []byte
}

// pendingTransition waits for a relay topic to report expected.
type pendingTransition struct {
	expected bool
	done     chan struct{}
}

// Engine turns fire-and-forget MQTT traffic into request/response calls and
// keeps the registry's state in step with what devices report.
//
// At most one wait is pending per topic. A second request for the same
// topic fails with ErrDuplicateRequest instead of queueing, since replies
// carry no request identity to tell two waiters apart.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - HandleMessage runs on paho's delivery goroutines.
type Engine struct {
	transport   Transport
	registry    *device.Registry
	broadcaster Broadcaster
	qos         byte

	mu          sync.Mutex
	replies     map[string]*pendingReply      // by response topic
	transitions map[string]*pendingTransition // by relay topic

	logger  Logger
	metrics Metrics
	sink    TelemetrySink
}

// Config holds the Engine's collaborators.
type Config struct {
	Transport   Transport
	Registry    *device.Registry
	Broadcaster Broadcaster
	QoS         byte

	// Optional.
	Logger  Logger
	Metrics Metrics
	Sink    TelemetrySink
}

// New creates an Engine.
func New(cfg Config) *Engine {
	e := &Engine{
		transport:   cfg.Transport,
		registry:    cfg.Registry,
		broadcaster: cfg.Broadcaster,
		qos:         cfg.QoS,
		replies:     make(map[string]*pendingReply),
		transitions: make(map[string]*pendingTransition),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		sink:        cfg.Sink,
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	return e
}

// IsConnected reports whether the broker link is up.
func (e *Engine) IsConnected() bool {
	return e.transport.IsConnected()
}

// Start subscribes every inbound device topic to HandleMessage. It is also
// the on-connect hook: paho starts each session clean, so it runs again
// after every reconnect. A failed topic is logged and the rest still
// subscribe; the joined errors are returned.
func (e *Engine) Start(ctx context.Context) error {
	var errs []error
	topics := e.registry.SubscriptionTopics()
	for _, topic := range topics {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.transport.Subscribe(topic, e.qos, e.handle); err != nil {
			e.logger.Error("subscribing device topic failed", "topic", topic, "error", err)
			errs = append(errs, fmt.Errorf("subscribing %s: %w", topic, err))
			continue
		}
		e.logger.Debug("subscribed device topic", "topic", topic)
	}
	e.logger.Info("device topics subscribed", "count", len(topics)-len(errs), "failed", len(errs))
	return errors.Join(errs...)
}

// handle adapts HandleMessage to mqtt.MessageHandler.
func (e *Engine) handle(topic string, payload []byte) error {
	e.HandleMessage(topic, payload)
	return nil
}

// Publish sends payload without waiting for anything. When the link is down
// or the publish fails the loss is logged and swallowed: callers of a
// fire-and-forget command own their own retry.
func (e *Engine) Publish(topic, payload string) {
	if err := e.PublishErr(topic, payload); err != nil {
		e.logger.Warn("publish dropped", "topic", topic, "error", err)
	}
}

// PublishErr is Publish for callers that want the failure.
func (e *Engine) PublishErr(topic, payload string) error {
	if !e.transport.IsConnected() {
		e.metrics.MQTTPublish(ErrNotConnected)
		return ErrNotConnected
	}
	err := e.transport.Publish(topic, []byte(payload), e.qos, false)
	e.metrics.MQTTPublish(err)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	e.logger.Debug("published", "topic", topic, "payload", payload)
	return nil
}

// SendSwitch publishes d's firmware-specific on/off command and records it
// in telemetry under source (api, schedule, crono).
func (e *Engine) SendSwitch(d device.Device, on bool, source string) error {
	topic, payload, ok := d.SwitchCommand(on)
	if !ok {
		return fmt.Errorf("%w: %s has no relaySet or backlog topic", ErrMissingTopic, d.ID)
	}
	if err := e.PublishErr(topic, payload); err != nil {
		return err
	}
	if e.sink != nil {
		e.sink.WriteDeviceCommand(d.ID, source, payload)
	}
	return nil
}

// RequestReply subscribes to responseTopic, publishes payload on
// commandTopic and waits for the first message on responseTopic, which must
// be a JSON object.
//
// The subscription is in place before the publish so a fast reply cannot be
// missed. The first message may be an unrelated retained one; matching is by
// topic only.
//
// Errors: ErrNotConnected and ErrDuplicateRequest immediately, ErrTimeout at
// the deadline, ErrMalformedReply wrapping the JSON error, or ctx.Err().
func (e *Engine) RequestReply(ctx context.Context, commandTopic, responseTopic, payload string, timeout time.Duration) (map[string]any, error) {
	raw, err := e.await(ctx, "request", responseTopic, timeout, func() error {
		return e.PublishErr(commandTopic, payload)
	})
	if err != nil {
		return nil, err
	}

	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		e.metrics.Correlation("request", "malformed")
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	if reply == nil {
		e.metrics.Correlation("request", "malformed")
		return nil, fmt.Errorf("%w: reply is null", ErrMalformedReply)
	}
	return reply, nil
}

// ReadRetained subscribes to topic and returns the next message on it,
// typically the retained value the broker replays on subscribe.
func (e *Engine) ReadRetained(ctx context.Context, topic string, timeout time.Duration) ([]byte, error) {
	return e.await(ctx, "retained", topic, timeout, nil)
}

// await registers a pending reply on topic, subscribes, runs afterSubscribe
// and waits. The pending entry is removed on every exit path.
func (e *Engine) await(ctx context.Context, kind, topic string, timeout time.Duration, afterSubscribe func() error) ([]byte, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	if !e.transport.IsConnected() {
		e.metrics.Correlation(kind, "rejected")
		return nil, ErrNotConnected
	}

	p := &pendingReply{done: make(chan []byte, 1)}
	e.mu.Lock()
	if _, busy := e.replies[topic]; busy {
		e.mu.Unlock()
		e.metrics.Correlation(kind, "rejected")
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, topic)
	}
	e.replies[topic] = p
	e.mu.Unlock()
	defer e.removeReply(topic, p)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if err := e.transport.Subscribe(topic, e.qos, e.handle); err != nil {
		e.metrics.Correlation(kind, "rejected")
		return nil, fmt.Errorf("subscribing %s: %w", topic, err)
	}
	if afterSubscribe != nil {
		if err := afterSubscribe(); err != nil {
			e.metrics.Correlation(kind, "rejected")
			return nil, err
		}
	}

	select {
	case raw := <-p.done:
		e.metrics.Correlation(kind, "ok")
		return raw, nil
	case <-timer.C:
		e.metrics.Correlation(kind, "timeout")
		return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, topic, timeout)
	case <-ctx.Done():
		e.metrics.Correlation(kind, "cancelled")
		return nil, ctx.Err()
	}
}

// removeReply deletes the entry only if it is still p.
func (e *Engine) removeReply(topic string, p *pendingReply) {
	e.mu.Lock()
	if e.replies[topic] == p {
		delete(e.replies, topic)
	}
	e.mu.Unlock()
}

// AwaitStateTransition publishes "1"/"0" on the device's relaySet topic and
// waits until its relay topic reports expected. Reports of the other value
// are logged and the wait continues.
//
// On timeout the device is marked offline and switch-status
// {deviceId, isOnline:false} is broadcast before ErrTimeout is returned.
func (e *Engine) AwaitStateTransition(ctx context.Context, deviceID string, expected bool, timeout time.Duration) error {
	if timeout <= 0 {
		return ErrInvalidTimeout
	}
	d, ok := e.registry.LookupByID(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	relayTopic := d.Topic(device.TopicRelay)
	setTopic := d.Topic(device.TopicRelaySet)
	if relayTopic == "" || setTopic == "" {
		return fmt.Errorf("%w: %s needs relay and relaySet", ErrMissingTopic, deviceID)
	}
	if !e.transport.IsConnected() {
		e.metrics.Correlation("transition", "rejected")
		return ErrNotConnected
	}

	p := &pendingTransition{expected: expected, done: make(chan struct{}, 1)}
	e.mu.Lock()
	if _, busy := e.transitions[relayTopic]; busy {
		e.mu.Unlock()
		e.metrics.Correlation("transition", "rejected")
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, relayTopic)
	}
	e.transitions[relayTopic] = p
	e.mu.Unlock()
	defer e.removeTransition(relayTopic, p)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if err := e.PublishErr(setTopic, device.SwitchPayload(device.FirmwareEspurna, expected)); err != nil {
		e.metrics.Correlation("transition", "rejected")
		return err
	}
	if e.sink != nil {
		e.sink.WriteDeviceCommand(deviceID, "api", device.SwitchPayload(device.FirmwareEspurna, expected))
	}

	select {
	case <-p.done:
		e.metrics.Correlation("transition", "ok")
		return nil
	case <-timer.C:
		e.metrics.Correlation("transition", "timeout")
		e.markOffline(d)
		return fmt.Errorf("%w: %s did not report %v within %v", ErrTimeout, deviceID, expected, timeout)
	case <-ctx.Done():
		e.metrics.Correlation("transition", "cancelled")
		return ctx.Err()
	}
}

func (e *Engine) removeTransition(topic string, p *pendingTransition) {
	e.mu.Lock()
	if e.transitions[topic] == p {
		delete(e.transitions, topic)
	}
	e.mu.Unlock()
}

// markOffline records a device that failed to confirm a command.
func (e *Engine) markOffline(d device.Device) {
	e.registry.RecordState(d.ID, device.StatePatch{IsOnline: device.Bool(false)})
	e.metrics.DeviceOnline(d.ID, false)
	if e.sink != nil {
		e.sink.WriteDeviceState(d.ID, string(d.Firmware), nil, false)
	}
	e.broadcast(EventSwitchStatus, SwitchStatus{DeviceID: d.ID, IsOnline: device.Bool(false)})
	e.logger.Warn("device did not confirm relay change, marked offline", "device_id", d.ID)
}

// PendingCount returns the number of outstanding waits of both kinds.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.replies) + len(e.transitions)
}

func (e *Engine) broadcast(event string, payload any) {
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(event, payload)
	}
}
