// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

// Package logger provides structured JSON logging with multi-tenant context.
// Every log line carries the component name and, when known, the tenant the
// event belongs to, so billing discrepancies can be reconciled from logs.
package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging for a single component
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry is the JSON shape written to stdout
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, tenantID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		TenantID:   tenantID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(tenantID, message string, fields map[string]interface{}) {
	l.Log(INFO, tenantID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(tenantID, message string, fields map[string]interface{}) {
	l.Log(ERROR, tenantID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(tenantID, message string, fields map[string]interface{}) {
	l.Log(WARN, tenantID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(tenantID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, tenantID, message, fields)
}

// ErrorErr logs an error message with the error string attached as a field
func (l *Logger) ErrorErr(tenantID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(tenantID, message, fields)
}
