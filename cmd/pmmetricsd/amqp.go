// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// dialAMQPChannel opens a connection and channel to broker, the same
// dial-then-Channel sequence the teacher's replication bridge uses
// (cmd/stdiscosrv/amqp.go). The connection is intentionally leaked for the
// life of the process: internal/eventbridge.Bus only needs the *amqp.Channel,
// and the service has no shutdown path that closes individual externally
// wired sinks.
func dialAMQPChannel(broker string) (*amqp.Channel, error) {
	conn, err := amqp.Dial(broker)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	return ch, nil
}
