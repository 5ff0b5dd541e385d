//
// Copyright (C) 2022 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify implements C5, an event sink that delivers watchdog
// events to an external webhook. The reference implementation
// (original_source/src/notifier.py) shipped two bespoke platform
// notifiers, TelegramNotifier and WeChatWorkNotifier, each doing a raw
// net/http(requests)-style POST with its own retry-free error
// handling. SPEC_FULL.md's supplemented feature #3 generalizes both
// into one configurable WebhookSink that POSTs a JSON payload to any
// URL, built on hashicorp/go-retryablehttp (transitively present in
// the teacher's driver/go.mod) so delivery survives transient
// failures without the watchdog engine itself retrying. Deliver runs
// on the caller's goroutine and keeps no queue: called from the
// engine's sink, it holds the engine loop for the POST and its
// retries, up to the 10-second per-delivery timeout.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/opswatch/watchdog/internal/statemachine"
	"github.com/opswatch/watchdog/internal/wlog"
)

// Payload is the JSON body POSTed to the configured webhook for every
// delivered event.
type Payload struct {
	Kind        string `json:"kind"`
	StateName   string `json:"state_name,omitempty"`
	NodeName    string `json:"node_name,omitempty"`
	Description string `json:"description,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms,omitempty"`
	SentAt      string `json:"sent_at"`
}

// WebhookSink delivers events to a single HTTP endpoint. It never
// blocks the caller more than the 10-second per-delivery timeout set
// in post, retries included, and never panics (§7
// SinkFailure is a property of the host, not of this sink, but a
// misbehaving transport must not escape either).
type WebhookSink struct {
	url    string
	client *retryablehttp.Client
}

// NewWebhookSink builds a sink that posts to url, retrying transient
// failures up to 3 times with go-retryablehttp's default backoff.
func NewWebhookSink(url string) *WebhookSink {
	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.RetryMax = 3
	client.Logger = nil
	return &WebhookSink{url: url, client: client}
}

// Deliver implements engine.Sink semantics: it is safe to pass
// s.Deliver directly to Engine.SetCallback, but callers that also
// want NotifyWhen filtering should route through Config.ShouldNotify
// first (spec.md §6: "filters sink delivery at the host").
func (s *WebhookSink) Deliver(ev statemachine.Event) {
	if err := s.post(ev); err != nil {
		wlog.Warn.Printf("notify: webhook delivery failed: %v", err)
	}
}

func (s *WebhookSink) post(ev statemachine.Event) error {
	body, err := json.Marshal(Payload{
		Kind:        ev.Kind.String(),
		StateName:   ev.StateName,
		NodeName:    ev.NodeName,
		Description: ev.Description,
		ElapsedMS:   ev.ElapsedMS,
		SentAt:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrap(err, "notify: marshaling payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "notify: building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "notify: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
