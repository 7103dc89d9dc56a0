// Package mqttpub publishes values to the MQTT broker.
package mqttpub

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Client is a Publisher backed by a paho connection.
type Client struct {
	client  mqtt.Client
	qos     byte
	retain  bool
	timeout time.Duration
}

func Connect(opts Options) (*Client, error) {
	scheme := "tcp"
	if opts.Ssl {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port)
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}
	if opts.Ssl {
		clientOpts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	c := mqtt.NewClient(clientOpts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	log.WithField("broker", broker).Info("Connected to MQTT broker")

	return &Client{
		client:  c,
		qos:     byte(opts.Qos),
		retain:  opts.Retain,
		timeout: timeout,
	}, nil
}

func (c *Client) Publish(topic string, payload any) error {
	value, ok := Format(payload)
	if !ok {
		return nil
	}
	token := c.client.Publish(topic, c.qos, c.retain, value)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	log.WithFields(log.Fields{"topic": topic, "payload": value}).Debug("Published")
	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) Close() {
	c.client.Disconnect(250)
}

// Format renders a payload the way it is sent on the wire.
// ok is false for nil values, which are not published.
func Format(payload any) (string, bool) {
	switch v := payload.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case json.RawMessage:
		return string(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case *int64:
		if v == nil {
			return "", false
		}
		return strconv.FormatInt(*v, 10), true
	case *float64:
		if v == nil {
			return "", false
		}
		return strconv.FormatFloat(*v, 'f', -1, 64), true
	case *time.Time:
		if v == nil {
			return "", false
		}
		return formatTime(*v), true
	case time.Time:
		return formatTime(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v), true
		}
		return string(data), true
	}
}

// Midnight values are days, anything else a timestamp.
func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
