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

package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/opswatch/watchdog/internal/statemachine"
)

func TestWebhookSinkDeliversJSONPayload(t *testing.T) {
	var mu sync.Mutex
	var received Payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	sink.Deliver(statemachine.Event{
		Kind:      statemachine.StateCompleted,
		StateName: "fetch_then_validate",
		NodeName:  "validate",
		ElapsedMS: 42,
	})

	mu.Lock()
	defer mu.Unlock()
	if received.Kind != "StateCompleted" {
		t.Fatalf("expected Kind StateCompleted, got %q", received.Kind)
	}
	if received.StateName != "fetch_then_validate" || received.NodeName != "validate" {
		t.Fatalf("unexpected payload: %+v", received)
	}
	if received.ElapsedMS != 42 {
		t.Fatalf("expected ElapsedMS 42, got %d", received.ElapsedMS)
	}
}

func TestWebhookSinkSwallowsDeliveryErrors(t *testing.T) {
	// Deliver must never panic even when the endpoint is unreachable;
	// failures are logged, not propagated, matching engine.Sink's
	// "must not block or crash the caller" contract.
	sink := NewWebhookSink("http://127.0.0.1:1/unreachable")
	sink.client.RetryMax = 0
	sink.Deliver(statemachine.Event{Kind: statemachine.StateTimeout})
}
