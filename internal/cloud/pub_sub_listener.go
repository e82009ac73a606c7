// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud provides components for interacting with Google Cloud services.
// This file defines a generic, reusable Pub/Sub message listener. It abstracts
// the mechanics of receiving messages from a subscription and delegates the
// actual processing to a "Command" from the chain-of-responsibility framework,
// which is how the storage-triggered analysis workflow gets driven by GCS
// notifications.
//
// Logic Flow:
//  1. An instance of PubSubListener is created with a client and a subscription ID.
//  2. A "Command" (a piece of business logic) is attached to this listener.
//  3. The `Listen` method starts an asynchronous background goroutine.
//  4. The goroutine continuously waits for new messages from the subscription.
//  5. Each arriving message is passed to the attached Command for processing.
//  6. The message is acknowledged only if the Command completes successfully,
//     giving at-least-once processing semantics.
//  7. The whole path is instrumented with OpenTelemetry spans.
//
// Structs:
//   - PubSubListener: Manages the connection to a Pub/Sub subscription and holds
//     the command that will process incoming messages.
//
// Functions:
//   - NewPubSubListener: Constructor for creating a new PubSubListener.
//   - SetCommand: Attaches a processing command to the listener.
//   - Listen: Starts the background process to receive and handle messages.
package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-video-compliance/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener encapsulates the components needed to listen to a specific
// Google Cloud Pub/Sub subscription. It connects a subscription to a
// processing command. Listeners have a life-cycle independent of individual
// API requests, so they live in the cloud package next to the other
// long-lived clients.
type PubSubListener struct {
	client       *pubsub.Client       // The client for interacting with the Pub/Sub service.
	subscription *pubsub.Subscription // The specific subscription this listener will pull messages from.
	command      cor.Command          // The command to execute for each message received.
}

// NewPubSubListener is the constructor for creating a PubSubListener. It
// initializes the listener with a Pub/Sub client, the ID of the subscription
// to listen to, and the command that will process the messages. The command
// may be nil at construction time and attached later with SetCommand, which
// is how startup wires listeners before the workflows exist.
//
// Inputs:
//   - pubsubClient: An authenticated *pubsub.Client for connecting to the service.
//   - subscriptionID: The string ID of the subscription (e.g., "video-intake-sub").
//   - command: A cor.Command that defines the business logic to execute on each message.
//
// Outputs:
//   - *PubSubListener: A pointer to the newly created and configured listener.
//   - error: An error if the listener could not be created.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)

	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches a command to the listener after construction. The first
// command attached wins; subsequent calls are ignored so the initial wiring
// cannot be overwritten.
//
// Inputs:
//   - command: The cor.Command to be executed when a message is received.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen starts the asynchronous message receiving process. It runs in a
// separate goroutine so the server keeps handling API requests while messages
// are consumed in the background.
//
// Inputs:
//   - ctx: Controls the lifecycle of the listener. When it is canceled
//     (e.g. during graceful shutdown), the message receiving stops.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening for notifications", "subscription", m.subscription.String())

	go func() {
		tracer := otel.Tracer("message-listener")

		// Receive blocks and invokes the callback once per delivered message.
		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(ctx, "receive-message")
			span.SetName("receive-message")
			span.SetAttributes(attribute.String("msg", string(msg.Data)))
			slog.Debug("received notification message")

			// Seed a fresh chain context with the raw message payload; the
			// attached command is responsible for decoding it. Close removes
			// any temp files the chain staged (e.g. downloaded videos).
			chainCtx := cor.NewBaseContext()
			defer chainCtx.Close()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			if !chainCtx.HasErrors() {
				span.SetStatus(codes.Ok, "success")
				// Ack tells Pub/Sub the analysis completed and the message
				// can be deleted from the subscription.
				msg.Ack()
			} else {
				span.SetStatus(codes.Error, "failed")
				for _, e := range chainCtx.GetErrors() {
					slog.Error("error executing analysis chain", "error", e)
				}
				// Neither Ack nor Nack: let the message be redelivered after
				// the acknowledgement deadline per the subscription's retry
				// policy.
			}

			span.End()
		})

		if err != nil {
			slog.Error("error receiving notification data", "error", err)
		}
	}()
}
