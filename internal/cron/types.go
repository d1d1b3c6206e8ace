package cron

import (
	"fmt"
	"time"
)

// Schedule describes when a job fires. Kind is one of "cron" (six-field
// cron expression), "every" (fixed interval) or "at" (one-shot timestamp).
type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	AtMs    int64  `json:"atMs,omitempty"`
}

// Payload is the agent turn a job triggers: the utterance is fed through
// the orchestrator as if the operator had typed it, and the reply is
// delivered to the configured channel.
type Payload struct {
	Message   string `json:"message"`
	Model     string `json:"model,omitempty"`
	Channel   string `json:"channel,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	Enabled        bool     `json:"enabled"`
	DeleteAfterRun bool     `json:"deleteAfterRun,omitempty"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	State          JobState `json:"state"`
}

func NewCronJob(name string, schedule Schedule, payload Payload) CronJob {
	now := time.Now()
	return CronJob{
		ID:             fmt.Sprintf("job_%d", now.UnixNano()),
		Name:           name,
		Schedule:       schedule,
		Payload:        payload,
		Enabled:        true,
		DeleteAfterRun: schedule.Kind == "at",
		CreatedAtMs:    now.UnixMilli(),
	}
}
