// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mqtt delivers reports as JSON messages to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wneessen/traccar-agent/internal/report"
)

const (
	name = "mqtt"

	// QoS 1 gives at-least-once delivery between agent and broker.
	qosAtLeastOnce  = 1
	connectTimeout  = time.Second * 10
	disconnectQuiet = 250 // milliseconds
)

// ErrNotConnected is returned when the broker connection could not be established in time.
var ErrNotConnected = errors.New("not connected to MQTT broker")

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// publisher is the subset of the paho client the transport needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Transport publishes each report to "<topic>/<device id>".
type Transport struct {
	client publisher
	topic  string
}

// Message is the JSON payload of a published report.
type Message struct {
	ID        string   `json:"id"`
	DeviceID  string   `json:"device_id"`
	Timestamp int64    `json:"timestamp"`
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lon"`
	Altitude  float64  `json:"altitude"`
	Speed     float64  `json:"speed"`
	Accuracy  float64  `json:"accuracy"`
	Course    *float64 `json:"course,omitempty"`
	Battery   *float64 `json:"battery,omitempty"`
}

// New connects to the broker and returns a Transport.
func New(opts Options) (*Transport, error) {
	if opts.Broker == "" {
		return nil, errors.New("MQTT broker is required")
	}
	if opts.Topic == "" {
		return nil, errors.New("MQTT topic is required")
	}

	clientOpts := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := pahomqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(disconnectQuiet)
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.Broker, err)
	}

	return &Transport{client: client, topic: opts.Topic}, nil
}

func (t *Transport) Name() string {
	return name
}

// Send publishes r and waits for the broker to acknowledge it or ctx to end.
func (t *Transport) Send(ctx context.Context, r report.Report) error {
	payload, err := json.Marshal(NewMessage(r))
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	token := t.client.Publish(t.topic+"/"+r.DeviceID, qosAtLeastOnce, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err = token.Error(); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (t *Transport) Close() {
	t.client.Disconnect(disconnectQuiet)
}

// NewMessage converts r into its JSON payload. The credential is never published.
func NewMessage(r report.Report) Message {
	msg := Message{
		ID:        r.ID.String(),
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp.Unix(),
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Altitude:  r.Altitude,
		Speed:     r.Speed,
		Accuracy:  r.Accuracy,
	}
	if r.Course.IsSet() {
		course := r.Course.Value()
		msg.Course = &course
	}
	if r.Battery.IsSet() {
		level := r.Battery.Value()
		msg.Battery = &level
	}
	return msg
}
