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

// Package engine implements C4, the engine loop, wiring the tailer
// (C1), line parser (C2) and state machine (C3) together and
// forwarding events to a host-supplied sink (C5). Grounded on the
// driver lifecycle convention of driver/log/auditdriver.go
// (Init/Run/Cleanup), generalized from a one-shot avro-file reader
// into the watchdog's poll-drive-dispatch loop.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/opswatch/watchdog/internal/logline"
	"github.com/opswatch/watchdog/internal/parser"
	"github.com/opswatch/watchdog/internal/statemachine"
	"github.com/opswatch/watchdog/internal/tailer"
	"github.com/opswatch/watchdog/internal/wlog"
)

// ErrLogPathEmpty is returned by New when logPath is empty (§7 ConfigInvalid).
var ErrLogPathEmpty = errors.New("engine: log path must not be empty")

// ErrNonPositiveInterval is returned by New when monitorInterval <= 0.
var ErrNonPositiveInterval = errors.New("engine: monitor interval must be positive")

// ErrAlreadyRunning is returned by Run if called while already running.
var ErrAlreadyRunning = errors.New("engine: already running")

// Sink consumes a single domain event. Implementations must not block
// for long and must not call back into the engine synchronously
// (spec.md §4.5).
type Sink func(statemachine.Event)

// Engine is the watchdog engine: C1 through C4 wired together. It is
// single-threaded internally; Run blocks the calling goroutine until
// Stop is called or a fatal startup error occurs.
type Engine struct {
	logPath  string
	interval time.Duration

	tailer  *tailer.Tailer
	machine *statemachine.Machine

	sink   Sink
	sinkMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// New constructs an Engine. Configuration methods (AddStateRule,
// AddEntryNode, SetCompletionNodes, SetCallback) are valid only before
// Run is called (spec.md §6).
func New(logPath string, monitorInterval time.Duration) (*Engine, error) {
	if logPath == "" {
		return nil, ErrLogPathEmpty
	}
	if monitorInterval <= 0 {
		return nil, ErrNonPositiveInterval
	}
	return &Engine{
		logPath:  logPath,
		interval: monitorInterval,
		tailer:   tailer.New(logPath),
		machine:  statemachine.New(),
		stopCh:   make(chan struct{}),
	}, nil
}

// AddStateRule declares a new expected node-transition path.
func (e *Engine) AddStateRule(name, startNode string, transitions []statemachine.Transition, description string) error {
	return e.machine.AddRule(statemachine.Rule{
		Name:        name,
		StartNode:   startNode,
		Transitions: transitions,
		Description: description,
	})
}

// AddEntryNode declares a new barrier node that resets every active rule.
func (e *Engine) AddEntryNode(name, nodeName, description string) {
	e.machine.AddEntryNode(statemachine.EntryNode{
		Name:        name,
		NodeName:    nodeName,
		Description: description,
	})
}

// SetCompletionNodes declares the set of node names exempt from
// timeout enforcement when they are the expected next target.
func (e *Engine) SetCompletionNodes(nodes []string) {
	e.machine.SetCompletionNodes(nodes)
}

// SetCallback installs the event sink. Only the most recently set
// sink is used.
func (e *Engine) SetCallback(sink Sink) {
	e.sinkMu.Lock()
	e.sink = sink
	e.sinkMu.Unlock()
}

// Snapshot returns the current diagnostic state of every declared rule.
func (e *Engine) Snapshot() []statemachine.RuleStatus {
	return e.machine.Snapshot(time.Now())
}

// Run opens the log file and blocks, driving the engine loop at the
// configured interval, until Stop is called. Open failure is fatal
// (§7 LogUnavailable) and is returned to the caller; no events are
// emitted in that case. The log handle is released on every exit path.
func (e *Engine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	if err := e.tailer.Open(); err != nil {
		return errors.Wrap(err, "engine: failed to open log for tailing")
	}
	defer func() {
		if err := e.tailer.Close(); err != nil {
			wlog.Warn.Printf("engine: error closing log file: %v", err)
		}
	}()

	for {
		if e.stopRequested() {
			return nil
		}
		if !e.sleepInterval() {
			return nil
		}
		if e.stopRequested() {
			return nil
		}
		e.tick()
	}
}

// Stop signals Run to return at the next opportunity. Idempotent and
// non-blocking; safe to call from any goroutine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

func (e *Engine) stopRequested() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

// sleepInterval waits for the configured monitor interval, returning
// false if Stop was signalled while waiting.
func (e *Engine) sleepInterval() bool {
	timer := time.NewTimer(e.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-e.stopCh:
		return false
	}
}

// tick runs one iteration of the engine loop: pull lines, parse them,
// drive the state machine, and check timeouts. now is read once per
// line and once for the tick's timeout check, per spec.md §4.4.
func (e *Engine) tick() {
	lines, rotated, err := e.tailer.Poll()
	if err != nil {
		e.emit(statemachine.Event{
			Kind:        statemachine.EngineLog,
			Description: "log read failed, reopening: " + err.Error(),
		})
		if rerr := e.tailer.Reopen(); rerr != nil {
			e.emit(statemachine.Event{
				Kind:        statemachine.EngineLog,
				Description: "log reopen failed: " + rerr.Error(),
			})
		}
		return
	}
	if rotated {
		e.emit(statemachine.Event{
			Kind:        statemachine.EngineLog,
			Description: "log file truncated or rotated, cursor reset",
		})
	}

	for _, raw := range lines {
		ll := logline.New(e.logPath, raw, time.Now())
		node, ok := parser.Extract(ll.Text)
		if !ok {
			continue
		}
		e.emit(statemachine.Event{
			Kind:        statemachine.EngineLog,
			NodeName:    node,
			Description: "detected node execution in " + ll.Filename,
		})
		for _, ev := range e.machine.OnNode(node, ll.ReadTime) {
			e.emit(ev)
		}
	}

	for _, ev := range e.machine.OnTick(time.Now()) {
		e.emit(ev)
	}
}

// emit forwards ev to the installed sink, recovering from a panicking
// sink so a misbehaving host cannot kill the engine (§7 SinkFailure).
func (e *Engine) emit(ev statemachine.Event) {
	e.sinkMu.Lock()
	sink := e.sink
	e.sinkMu.Unlock()
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			wlog.Error.Printf("engine: sink panicked, continuing: %v", r)
		}
	}()
	sink(ev)
}
