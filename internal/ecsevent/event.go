// Package ecsevent decodes ECS "Task State Change" events as delivered by
// EventBridge (directly to Lambda, or forwarded over HTTP).
package ecsevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Task statuses the relay reasons about. ECS reports others (PROVISIONING,
// PENDING, DEPROVISIONING, STOPPING, ...) and they are carried through as-is.
const (
	StatusRunning = "RUNNING"
	StatusStopped = "STOPPED"
)

var ErrMalformedEvent = errors.New("malformed task event")

// Envelope is the EventBridge wrapper around an ECS detail payload.
type Envelope struct {
	ID         string          `json:"id,omitempty"`
	DetailType string          `json:"detail-type,omitempty"`
	Source     string          `json:"source,omitempty"`
	Account    string          `json:"account,omitempty"`
	Region     string          `json:"region"`
	Detail     json.RawMessage `json:"detail"`
}

// Detail is the subset of the ECS task state change detail the relay consumes.
type Detail struct {
	ClusterArn    string `json:"clusterArn"`
	Group         string `json:"group"`
	LastStatus    string `json:"lastStatus"`
	DesiredStatus string `json:"desiredStatus,omitempty"`
	StopCode      string `json:"stopCode,omitempty"`
	StoppedReason string `json:"stoppedReason,omitempty"`
	StartedBy     string `json:"startedBy,omitempty"`
	TaskArn       string `json:"taskArn,omitempty"`
}

// TaskEvent is a decoded lifecycle event.
type TaskEvent struct {
	Region        string
	Cluster       string
	Task          string
	LastStatus    string
	DesiredStatus string
	StopCode      string
	StoppedReason string
	StartedBy     string
	TaskArn       string
}

// Decode parses a full EventBridge envelope.
func Decode(b []byte) (TaskEvent, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return TaskEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return FromDetail(env.Region, env.Detail)
}

// FromDetail parses the detail payload of an envelope that was already decoded
// (the Lambda runtime hands us the envelope fields separately).
func FromDetail(region string, detail []byte) (TaskEvent, error) {
	if len(detail) == 0 || string(detail) == "null" {
		return TaskEvent{}, fmt.Errorf("%w: detail missing", ErrMalformedEvent)
	}
	var d Detail
	if err := json.Unmarshal(detail, &d); err != nil {
		return TaskEvent{}, fmt.Errorf("%w: detail: %v", ErrMalformedEvent, err)
	}
	return FromTaskDetail(region, d)
}

// FromTaskDetail derives cluster and task names from the ARN and group fields.
func FromTaskDetail(region string, d Detail) (TaskEvent, error) {
	cluster, ok := segment(d.ClusterArn, "/", 1)
	if !ok {
		return TaskEvent{}, fmt.Errorf("%w: clusterArn %q has no cluster segment", ErrMalformedEvent, d.ClusterArn)
	}
	task, ok := segment(d.Group, ":", 1)
	if !ok {
		return TaskEvent{}, fmt.Errorf("%w: group %q has no task segment", ErrMalformedEvent, d.Group)
	}
	if strings.TrimSpace(d.LastStatus) == "" {
		return TaskEvent{}, fmt.Errorf("%w: lastStatus missing", ErrMalformedEvent)
	}
	return TaskEvent{
		Region:        region,
		Cluster:       cluster,
		Task:          task,
		LastStatus:    d.LastStatus,
		DesiredStatus: d.DesiredStatus,
		StopCode:      d.StopCode,
		StoppedReason: d.StoppedReason,
		StartedBy:     d.StartedBy,
		TaskArn:       d.TaskArn,
	}, nil
}

// segment returns the idx-th sep-delimited part of s; empty parts don't count as present.
func segment(s, sep string, idx int) (string, bool) {
	parts := strings.Split(s, sep)
	if len(parts) <= idx || parts[idx] == "" {
		return "", false
	}
	return parts[idx], true
}

// ConsoleURL links to the service events page of the task in the AWS console.
func (e TaskEvent) ConsoleURL() string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/ecs/home#/clusters/%s/services/%s/events", e.Region, e.Cluster, e.Task)
}
