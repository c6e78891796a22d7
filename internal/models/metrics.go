// Package models defines the wire-format structures exchanged with the collector.
// These structures are serialized to JSON for transmission to the API.
package models

import "encoding/json"

// MetricType identifies the resource a MetricSample describes.
type MetricType string

const (
	MetricCPU     MetricType = "cpu"
	MetricMemory  MetricType = "memory"
	MetricDisk    MetricType = "disk"
	MetricNetwork MetricType = "network"
	MetricIO      MetricType = "io"
)

// MetricSample is one collected value. Samples are immutable once created.
type MetricSample struct {
	MetricType MetricType `json:"metric_type" validate:"required,oneof=cpu memory disk network io"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit" validate:"required"`
}

// ServiceRecord is a per-process snapshot sent to the /services endpoint.
type ServiceRecord struct {
	Name          string  `json:"name" validate:"required"`
	PID           int32   `json:"pid" validate:"gt=0"`
	Status        string  `json:"status" validate:"oneof=running stopped"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	DiskReadMB    float64 `json:"disk_read_mb"`
	DiskWriteMB   float64 `json:"disk_write_mb"`
	User          string  `json:"user"`
	Command       string  `json:"command"`
}

// Inventory describes the host at registration time.
type Inventory struct {
	IPAddress   string
	OSType      string
	OSVersion   string
	CPUCores    int
	TotalMemory uint64
	TotalDisk   uint64
}

// RegisterRequest is the payload for POST /agent/register.
type RegisterRequest struct {
	AgentID     string `json:"agent_id" validate:"required"`
	HWID        string `json:"hwid" validate:"required"`
	Hostname    string `json:"hostname" validate:"required"`
	IPAddress   string `json:"ip_address"`
	OSType      string `json:"os_type"`
	OSVersion   string `json:"os_version"`
	CPUCores    int    `json:"cpu_cores"`
	TotalMemory uint64 `json:"total_memory"`
	TotalDisk   uint64 `json:"total_disk"`
	APIToken    string `json:"api_token" validate:"required,len=64,hexadecimal"`
}

// HeartbeatRequest is the payload for POST /agent/heartbeat.
type HeartbeatRequest struct {
	AgentID string `json:"agent_id" validate:"required"`
}

// MetricsRequest is the payload for POST /metrics.
type MetricsRequest struct {
	AgentID string         `json:"agent_id" validate:"required"`
	Metrics []MetricSample `json:"metrics" validate:"required,min=1,dive"`
}

// ServicesRequest is the payload for POST /services.
type ServicesRequest struct {
	AgentID  string          `json:"agent_id" validate:"required"`
	Services []ServiceRecord `json:"services" validate:"required,min=1,dive"`
}

// Ack is the response body every collector endpoint returns.
type Ack struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}
