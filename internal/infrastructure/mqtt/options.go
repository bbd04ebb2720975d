package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

// QoS levels.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
	QoSExactlyOnce byte = 2
)

// Connection constants.
const (
	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Message is a single outbound MQTT message, used for the last will
// and the graceful offline status.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// BrokerURL returns the paho broker URL for cfg.
func BrokerURL(cfg config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

// buildClientOptions creates paho MQTT options for one dial.
//
// Auto-reconnect and connect-retry are switched off: ConnectionManager
// owns every retry and its timing. Each dial gets a clean session, so
// subscriptions are restored by the manager after connect.
func buildClientOptions(opts DialOptions) *pahomqtt.ClientOptions {
	po := pahomqtt.NewClientOptions()
	po.AddBroker(BrokerURL(opts.Config.Broker))
	po.SetClientID(opts.ClientID)

	if opts.Config.Auth.Username != "" {
		po.SetUsername(opts.Config.Auth.Username)
		po.SetPassword(opts.Config.Auth.Password)
	}

	po.SetCleanSession(true)
	po.SetAutoReconnect(false)
	po.SetConnectRetry(false)
	po.SetConnectTimeout(opts.Config.ConnectTimeout())
	po.SetKeepAlive(defaultKeepAlive)

	if opts.Config.Broker.TLS {
		po.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	if opts.Will != nil {
		configureLWT(po, *opts.Will)
	}

	return po
}

// configureLWT registers the last will with the broker.
//
// The broker publishes it if the session ends without a clean
// DISCONNECT (crash, network failure, keepalive timeout).
func configureLWT(po *pahomqtt.ClientOptions, will Message) {
	po.SetBinaryWill(will.Topic, will.Payload, will.QoS, will.Retained)
}
