/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package messaging fans completed turns out over NATS.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-orbit/internal/config"
	"github.com/loqalabs/loqa-orbit/internal/events"
	"github.com/loqalabs/loqa-orbit/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject carries one message per completed turn
const DefaultSubject = "orbit.turns.completed"

// ErrNotConnected is returned when publishing before Connect succeeds
var ErrNotConnected = errors.New("NATS connection not established")

// TurnPublisher publishes turn events to NATS
type TurnPublisher struct {
	conn          *nats.Conn
	url           string
	subject       string
	maxReconnect  int
	reconnectWait time.Duration
}

// NewTurnPublisher creates a publisher for the configured server and subject
func NewTurnPublisher(cfg config.NATSConfig) *TurnPublisher {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &TurnPublisher{
		url:           cfg.URL,
		subject:       subject,
		maxReconnect:  cfg.MaxReconnect,
		reconnectWait: cfg.ReconnectWait,
	}
}

// Subject returns the subject turn events are published on
func (p *TurnPublisher) Subject() string {
	return p.subject
}

// Connect establishes the connection to the NATS server
func (p *TurnPublisher) Connect() error {
	if p.url == "" {
		return fmt.Errorf("NATS URL is not configured")
	}

	logging.LogNATSEvent(p.subject, "connecting", zap.String("url", p.url))

	opts := []nats.Option{
		nats.Name("loqa-orbit"),
		nats.ReconnectWait(p.reconnectWait),
		nats.MaxReconnects(p.maxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.LogWarn("NATS disconnected", zap.String("component", "nats"), zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.LogNATSEvent(p.subject, "reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.LogNATSEvent(p.subject, "closed")
		}),
	}

	conn, err := nats.Connect(p.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p.conn = conn
	logging.LogNATSEvent(p.subject, "connected", zap.String("url", conn.ConnectedUrl()))
	return nil
}

// Record publishes a completed turn as JSON
func (p *TurnPublisher) Record(event *events.TurnEvent) error {
	if p.conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}

	logging.LogNATSEvent(p.subject, "published",
		zap.String("uuid", event.UUID),
		zap.String("mode", string(event.Mode)),
		zap.Bool("success", event.Success),
	)
	return nil
}

// Subscribe delivers every turn event published on the subject to handler
func (p *TurnPublisher) Subscribe(handler func(*events.TurnEvent)) (*nats.Subscription, error) {
	if p.conn == nil {
		return nil, ErrNotConnected
	}

	return p.conn.Subscribe(p.subject, func(msg *nats.Msg) {
		event, err := DecodeTurnEvent(msg.Data)
		if err != nil {
			logging.LogError(err, "Error unmarshaling turn event", zap.String("component", "nats"))
			return
		}
		handler(event)
	})
}

// DecodeTurnEvent parses a published turn event
func DecodeTurnEvent(data []byte) (*events.TurnEvent, error) {
	var event events.TurnEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal turn event: %w", err)
	}
	return &event, nil
}

// IsConnected returns true if connected to NATS
func (p *TurnPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains pending messages and closes the connection
func (p *TurnPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
