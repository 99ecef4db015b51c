package ecsevent

import (
	"errors"
	"testing"
)

const stoppedEnvelope = `{
  "version": "0",
  "id": "3317b2af-7005-947d-b652-f55e762e571a",
  "detail-type": "ECS Task State Change",
  "source": "aws.ecs",
  "account": "111122223333",
  "region": "us-west-2",
  "detail": {
    "clusterArn": "arn:aws:ecs:us-west-2:111122223333:cluster/prod",
    "group": "service:api",
    "lastStatus": "STOPPED",
    "desiredStatus": "STOPPED",
    "stopCode": "EssentialContainerExited",
    "stoppedReason": "OOMKilled",
    "startedBy": "ecs-svc/1234567890",
    "taskArn": "arn:aws:ecs:us-west-2:111122223333:task/prod/abc"
  }
}`

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()
	ev, err := Decode([]byte(stoppedEnvelope))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if ev.Region != "us-west-2" {
		t.Fatalf("Region = %q", ev.Region)
	}
	if ev.Cluster != "prod" {
		t.Fatalf("Cluster = %q, want prod", ev.Cluster)
	}
	if ev.Task != "api" {
		t.Fatalf("Task = %q, want api", ev.Task)
	}
	if ev.LastStatus != StatusStopped || ev.StoppedReason != "OOMKilled" || ev.StopCode != "EssentialContainerExited" {
		t.Fatalf("unexpected status fields: %+v", ev)
	}
	if ev.StartedBy != "ecs-svc/1234567890" {
		t.Fatalf("StartedBy = %q", ev.StartedBy)
	}
}

func TestDecodeOptionalFieldsDefaultEmpty(t *testing.T) {
	t.Parallel()
	raw := `{"region":"eu-west-1","detail":{"clusterArn":"arn:.../staging","group":"family:worker","lastStatus":"RUNNING"}}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if ev.Cluster != "staging" || ev.Task != "worker" {
		t.Fatalf("unexpected names: cluster=%q task=%q", ev.Cluster, ev.Task)
	}
	if ev.StopCode != "" || ev.StoppedReason != "" || ev.StartedBy != "" {
		t.Fatalf("optional fields should default empty: %+v", ev)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{`},
		{name: "no detail", raw: `{"region":"us-east-1"}`},
		{name: "group without task", raw: `{"region":"r","detail":{"clusterArn":"a/b","group":"service","lastStatus":"RUNNING"}}`},
		{name: "cluster without name", raw: `{"region":"r","detail":{"clusterArn":"arn","group":"service:api","lastStatus":"RUNNING"}}`},
		{name: "no status", raw: `{"region":"r","detail":{"clusterArn":"a/b","group":"service:api"}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.raw))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("Decode(%s) err = %v, want ErrMalformedEvent", tt.raw, err)
			}
		})
	}
}

func TestGroupUsesSecondSegmentOnly(t *testing.T) {
	t.Parallel()
	ev, err := FromTaskDetail("us-east-1", Detail{ClusterArn: "arn:aws:ecs:x:1:cluster/c1", Group: "service:api:canary", LastStatus: "PENDING"})
	if err != nil {
		t.Fatalf("FromTaskDetail error: %v", err)
	}
	if ev.Task != "api" {
		t.Fatalf("Task = %q, want api", ev.Task)
	}
}

func TestConsoleURL(t *testing.T) {
	t.Parallel()
	ev := TaskEvent{Region: "us-east-1", Cluster: "prod", Task: "api"}
	want := "https://us-east-1.console.aws.amazon.com/ecs/home#/clusters/prod/services/api/events"
	if got := ev.ConsoleURL(); got != want {
		t.Fatalf("ConsoleURL = %q, want %q", got, want)
	}
}
