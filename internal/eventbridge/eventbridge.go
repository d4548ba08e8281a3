// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package eventbridge republishes session lifecycle events (spec.md §6's
// control-surface side effects) onto an in-process ring-buffered bus,
// adapted from the teacher's internal/events pub/sub shape, and optionally
// fans them out to an external AMQP exchange. The AMQP sink is disabled by
// default: an operator wires one in to feed an external monitoring system
// without the metrics core itself depending on one.
package eventbridge

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/GameTechDev/pmmetricscore/internal/timeutil"
)

// Kind enumerates the session lifecycle events this bus carries.
type Kind int

const (
	SessionOpened Kind = iota
	TrackingStarted
	TrackingStopped
	EtlLoggingFinished
)

func (k Kind) String() string {
	switch k {
	case SessionOpened:
		return "SessionOpened"
	case TrackingStarted:
		return "TrackingStarted"
	case TrackingStopped:
		return "TrackingStopped"
	case EtlLoggingFinished:
		return "EtlLoggingFinished"
	default:
		return "Unknown"
	}
}

// Event is one published session lifecycle occurrence. Only the fields
// relevant to Kind are populated. TimestampNanos is stamped by Publish, not
// by the caller, so two events published from different goroutines still
// sort consistently for a downstream consumer (e.g. the AMQP sink) even
// when the wall clock itself doesn't strictly advance between calls.
type Event struct {
	Kind           Kind   `json:"kind"`
	SessionID      string `json:"session_id,omitempty"`
	Pid            uint32 `json:"pid,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	TimestampNanos int64  `json:"timestamp_nanos"`
}

const subscriberBuffer = 64

// Bus is an in-process pub/sub of Events, with an optional AMQP sink. It
// never blocks a publisher on a slow subscriber: a subscriber's channel is
// buffered and publishes are dropped (not queued indefinitely) if the
// subscriber falls behind, the same backpressure policy the teacher's
// internal/events applies to its own ring-buffered subscriptions.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int

	amqpChan   *amqp.Channel
	amqpExchange string
}

// New returns a Bus with no AMQP sink attached.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// AttachAMQP wires ch as the bus's AMQP sink, publishing every event as
// JSON to exchange with routing key equal to the event kind's name.
func (b *Bus) AttachAMQP(ch *amqp.Channel, exchange string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.amqpChan = ch
	b.amqpExchange = exchange
}

// Subscribe returns a channel of future events and an unsubscribe func.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish fans ev out to every current subscriber and, if attached, the
// AMQP sink. AMQP marshal and publish errors are discarded without being
// logged or returned, since a monitoring sink being unavailable must never
// affect tracking.
func (b *Bus) Publish(ev Event) {
	ev.TimestampNanos = timeutil.StrictlyMonotonicNanos()

	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs))
	for _, c := range b.subs {
		subs = append(subs, c)
	}
	amqpChan, exchange := b.amqpChan, b.amqpExchange
	b.mu.Unlock()

	for _, c := range subs {
		select {
		case c <- ev:
		default:
		}
	}

	if amqpChan == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = amqpChan.PublishWithContext(context.Background(), exchange, ev.Kind.String(), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
