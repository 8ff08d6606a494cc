package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/logger"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	// DefaultClientID is used when the config does not name one.
	DefaultClientID = "alarm-gateway"
)

var errTimeout = errors.New("timeout")

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int
	// OnConnectionChange, if set, is called whenever the broker connection
	// goes up or down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are queued and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	outbox *outbox
	log    *zap.SugaredLogger
	notify func(bool)

	replayMu sync.Mutex // serialises replays
}

// NewRealPublisher creates a publisher for the given broker. If the broker is
// not reachable within the connect timeout the publisher is still returned;
// paho keeps retrying in the background and messages are queued meanwhile.
func NewRealPublisher(ctx context.Context, opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt: no broker configured")
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}

	p := &RealPublisher{
		outbox: newOutbox(opts.BufferSize),
		log:    logger.FromContext(ctx).Named("mqtt").With("broker", opts.Broker),
		notify: opts.OnConnectionChange,
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, WillPayload(time.Now()), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	p.client = paho.NewClient(co)
	t := p.client.Connect()
	if !t.WaitTimeout(connectTimeout) {
		p.log.Warnf("broker not reachable after %s, queueing until connected", connectTimeout)
		return p, nil
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// newPublisherWithClient wires an already constructed client.
func newPublisherWithClient(ctx context.Context, client paho.Client, bufferSize int) *RealPublisher {
	return &RealPublisher{
		client: client,
		outbox: newOutbox(bufferSize),
		log:    logger.FromContext(ctx).Named("mqtt"),
	}
}

// Dispatch implements alarm.Sink. Alarms use QoS 1 and are never retained.
func (p *RealPublisher) Dispatch(ctx context.Context, event alarm.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(ctx, message{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(context.Background(), message{
		topic:    TopicSystem,
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

func (p *RealPublisher) publish(ctx context.Context, msg message) error {
	if !p.client.IsConnectionOpen() {
		p.outbox.push(p.log, msg)
		p.log.Debugf("disconnected, queued message for %s (%d waiting)", msg.topic, p.outbox.len())
		// The connect handler may have drained the outbox between the check
		// and the push.
		if p.client.IsConnectionOpen() {
			p.replay()
		}
		return nil
	}

	t := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if err := wait(ctx, t, publishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) onConnect() {
	if p.notify != nil {
		p.notify(true)
	}

	if n := p.replay(); n == 0 {
		p.log.Infof("connected")
	}
}

// replay publishes every queued message, oldest first, and returns how many
// it took from the outbox. Messages after a failed publish are queued again.
func (p *RealPublisher) replay() int {
	p.replayMu.Lock()
	defer p.replayMu.Unlock()

	queued := p.outbox.flush()
	if len(queued) == 0 {
		return 0
	}

	p.log.Infof("replaying %d queued messages", len(queued))
	for i, msg := range queued {
		t := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if err := wait(context.Background(), t, publishTimeout); err != nil {
			p.log.Warnf("replay stopped: %v", err)
			for _, rest := range queued[i:] {
				p.outbox.push(p.log, rest)
			}
			break
		}
	}
	return len(queued)
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.log.Warnf("connection lost: %v", err)
	if p.notify != nil {
		p.notify(false)
	}
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Queued returns the number of messages waiting for the broker.
func (p *RealPublisher) Queued() int {
	return p.outbox.len()
}

// Dropped returns how many queued messages were overwritten.
func (p *RealPublisher) Dropped() uint64 {
	return p.outbox.droppedTotal()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.outbox.len(); n > 0 {
		p.log.Warnf("closing with %d undelivered messages", n)
	}
	p.client.Disconnect(1000)
	return nil
}
