package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationOutboxDue = "notification.outbox.due"

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
	Country  string `json:"country"`
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}
