package broker

import (
	"fmt"
	"log/slog"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

// listenerID identifies the single TCP listener.
const listenerID = "tcp"

// Handler receives messages delivered to an inline subscription.
type Handler func(topic string, payload []byte)

// Broker is a running embedded MQTT broker.
type Broker struct {
	server *mochi.Server
	tcp    *listeners.TCP

	mu     sync.Mutex
	nextID int
	closed bool
}

// Start creates the broker, binds its TCP listener and starts serving.
// An address with port 0 binds a free port; use Addr to read it back.
func Start(cfg config.EmbeddedBrokerConfig, logger *slog.Logger) (*Broker, error) {
	if cfg.Address == "" {
		return nil, ErrInvalidAddress
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       logger.With(slog.String("component", "mqtt-broker")),
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("%w: adding auth hook: %w", ErrStartFailed, err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: listenerID, Address: cfg.Address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("%w: listening on %s: %w", ErrStartFailed, cfg.Address, err)
	}

	if err := server.Serve(); err != nil {
		_ = server.Close()
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	return &Broker{server: server, tcp: tcp, nextID: 1}, nil
}

// Addr returns the bound listen address, e.g. "127.0.0.1:41883".
func (b *Broker) Addr() string {
	return b.tcp.Address()
}

// Publish injects a message as the broker's inline client.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return b.server.Publish(topic, payload, retain, qos)
}

// Subscribe attaches an inline subscription to filter.
// The handler runs on the broker's delivery goroutine.
func (b *Broker) Subscribe(filter string, handler Handler) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.mu.Unlock()

	return b.server.Subscribe(filter, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload)
	})
}

// Close stops the listener and disconnects all clients. It is safe to
// call more than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return b.server.Close()
}
