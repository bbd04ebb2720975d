package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

// DialOptions describe one connection attempt.
type DialOptions struct {
	ClientID string
	Config   config.MQTTConfig

	// Will is registered as the session's last will when non-nil.
	Will *Message

	// OnConnectionLost is invoked once if an established session drops.
	OnConnectionLost func(err error)
}

// Session is a single broker session. A Session is used for one
// connection only; reconnecting dials a new one.
type Session interface {
	Connect() error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Disconnect(quiesceMS uint)
}

// Dialer creates sessions.
type Dialer interface {
	Dial(opts DialOptions) Session
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(opts DialOptions) Session

// Dial calls f(opts).
func (f DialerFunc) Dial(opts DialOptions) Session {
	return f(opts)
}

// PahoDialer dials sessions with the Eclipse paho client.
type PahoDialer struct{}

// Dial builds a paho client for opts. It does not connect.
func (PahoDialer) Dial(opts DialOptions) Session {
	po := buildClientOptions(opts)
	lost := opts.OnConnectionLost
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if lost != nil {
			lost(err)
		}
	})
	return &pahoSession{
		client:         pahomqtt.NewClient(po),
		connectTimeout: opts.Config.ConnectTimeout(),
	}
}

type pahoSession struct {
	client         pahomqtt.Client
	connectTimeout time.Duration
}

func (s *pahoSession) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(s.connectTimeout) {
		s.client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, s.connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

func (s *pahoSession) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (s *pahoSession) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := s.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (s *pahoSession) Disconnect(quiesceMS uint) {
	s.client.Disconnect(quiesceMS)
}
