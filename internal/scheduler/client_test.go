package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	url   string
	queue string
}

func (c testSchedulerConfig) GetRedisURL() string { return c.url }

func (c testSchedulerConfig) GetRedisTLSInsecure() bool { return false }

func (c testSchedulerConfig) GetAsynqQueueName() string { return c.queue }

func (c testSchedulerConfig) GetAsynqConcurrency() int { return 1 }

func TestEnqueueOutboxDueSchedulesTask(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testSchedulerConfig{url: "redis://" + srv.Addr(), queue: "notifications"}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	outboxID := uuid.New()
	err = client.EnqueueOutboxDue(context.Background(), NotificationOutboxDuePayload{
		OutboxID: outboxID.String(),
		Country:  "SG",
	}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("EnqueueOutboxDue: %v", err)
	}

	insp := asynq.NewInspector(asynq.RedisClientOpt{Addr: srv.Addr()})
	defer insp.Close()

	tasks, err := insp.ListScheduledTasks("notifications")
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("scheduled tasks = %d, want 1", len(tasks))
	}
	if tasks[0].Type != TaskNotificationOutboxDue {
		t.Fatalf("task type = %q, want %q", tasks[0].Type, TaskNotificationOutboxDue)
	}
	if !strings.Contains(string(tasks[0].Payload), outboxID.String()) {
		t.Fatalf("payload %s does not carry the outbox id", tasks[0].Payload)
	}
}

func TestEnqueueOutboxDueImmediateLandsPending(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testSchedulerConfig{url: "redis://" + srv.Addr(), queue: "notifications"}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	err = client.EnqueueOutboxDue(context.Background(), NotificationOutboxDuePayload{
		OutboxID: uuid.NewString(),
		Country:  "SG",
	}, time.Now().Add(-time.Second))
	if err != nil {
		t.Fatalf("EnqueueOutboxDue: %v", err)
	}

	insp := asynq.NewInspector(asynq.RedisClientOpt{Addr: srv.Addr()})
	defer insp.Close()

	tasks, err := insp.ListPendingTasks("notifications")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(tasks))
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Fatal("expected an error without a redis url")
	}
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	in := NotificationOutboxDuePayload{OutboxID: uuid.NewString(), Country: "MY"}
	task, err := NewNotificationOutboxDueTask(in)
	if err != nil {
		t.Fatalf("NewNotificationOutboxDueTask: %v", err)
	}
	out, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		t.Fatalf("ParseNotificationOutboxDuePayload: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}
