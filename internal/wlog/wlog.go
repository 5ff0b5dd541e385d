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

// Package wlog provides the package-level loggers used across the
// watchdog engine and its host. Adapted from the leveled-logger-var
// convention of github.com/sysflow-telemetry/sf-apis/go/logger, backed
// by logrus since that sibling package is not available to this module.
package wlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level is the minimum level of the shared logger, set by Init. Trace,
// Info, Warn and Error all write at logrus' Info level, so Level does
// not select among them: at TRACE or INFO all four emit, at WARN or
// ERROR none of them do.
type Level = logrus.Level

// Level aliases mirroring the teacher's logger.TRACE/INFO/... constants.
const (
	TRACE = logrus.TraceLevel
	INFO  = logrus.InfoLevel
	WARN  = logrus.WarnLevel
	ERROR = logrus.ErrorLevel
)

// Trace, Info, Warn and Error are package-level loggers, mirroring the
// teacher's logger.Trace.Printf(...)/logger.Info.Println(...) call sites.
// All four point at the same *logrus.Logger.
var (
	Trace *logrus.Logger
	Info  *logrus.Logger
	Warn  *logrus.Logger
	Error *logrus.Logger

	base *logrus.Logger
)

func init() {
	base = logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	Trace = base
	Info = base
	Warn = base
	Error = base
}

// Init sets the minimum level that will be emitted, mirroring
// logger.InitLoggers(level) in the teacher's test suite (see
// driver/log/auditdriver_test.go's TestMain).
func Init(level Level) {
	base.SetLevel(level)
}
