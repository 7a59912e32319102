// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// Package logs configures the logrus formatter used by the media
// proxy. The formatter emits structured JSON with an attached service
// context, and for error-level entries includes the caller location so
// that log aggregators can group reports by origin.
package logs

import (
	"bytes"
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

type serviceContext struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

type reportLocation struct {
	FilePath     string `json:"filePath"`
	LineNumber   int    `json:"lineNumber"`
	FunctionName string `json:"functionName"`
}

type jsonFormatter struct {
	ctx serviceContext
}

// isError determines whether an entry should carry a report location.
// This requires caller information to be present on the entry.
func isError(e *log.Entry) bool {
	l := e.Level
	return (l == log.ErrorLevel || l == log.FatalLevel || l == log.PanicLevel) &&
		e.HasCaller()
}

func (f jsonFormatter) Format(e *log.Entry) ([]byte, error) {
	msg := e.Data
	msg["serviceContext"] = &f.ctx
	msg["message"] = &e.Message
	msg["eventTime"] = &e.Time
	msg["severity"] = e.Level.String()

	if isError(e) {
		loc := reportLocation{
			FilePath:     e.Caller.File,
			LineNumber:   e.Caller.Line,
			FunctionName: e.Caller.Function,
		}
		msg["context"] = &loc
	}

	b := new(bytes.Buffer)
	err := json.NewEncoder(b).Encode(&msg)

	return b.Bytes(), err
}

// Init installs the JSON formatter on the global logrus logger.
func Init(version string) {
	log.SetReportCaller(true)
	log.SetFormatter(jsonFormatter{
		ctx: serviceContext{
			Service: "mediaproxy",
			Version: version,
		},
	})
}
