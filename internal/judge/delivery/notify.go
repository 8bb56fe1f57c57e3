package delivery

import (
	"context"
	"encoding/json"
	"time"

	"judgehost/internal/common/cache"
	"judgehost/internal/common/mq"
	"judgehost/internal/judge/verdict"
	appErr "judgehost/pkg/errors"
)

const (
	DefaultRedisChannel = "submission-completed"
	DefaultKafkaTopic   = "judge.submission.completed"
)

// Event describes the end of one delivery attempt.
type Event struct {
	SubmissionID string         `json:"submissionId"`
	Delivered    bool           `json:"delivered"`
	BackupPath   string         `json:"backupPath,omitempty"`
	Cases        int            `json:"cases"`
	Summary      map[string]int `json:"summary"`
	Verdict      string         `json:"verdict"`
	VerdictCode  int            `json:"verdictCode"`
	FinishedAt   time.Time      `json:"finishedAt"`
}

func newEvent(id string, payload verdict.Payload, delivered bool, backup string, at time.Time) Event {
	overall := payload.Overall()
	return Event{
		SubmissionID: id,
		Delivered:    delivered,
		BackupPath:   backup,
		Cases:        payload.CaseCount(),
		Summary:      payload.Summary(),
		Verdict:      overall.String(),
		VerdictCode:  overall.Code(),
		FinishedAt:   at,
	}
}

// Notifier announces finished submissions. Failures are logged, never retried.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// RedisNotifier publishes the submission id on a pub/sub channel.
type RedisNotifier struct {
	pub     cache.PubSubOps
	channel string
}

func NewRedisNotifier(pub cache.PubSubOps, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisNotifier{pub: pub, channel: channel}
}

func (n *RedisNotifier) Name() string { return "redis" }

func (n *RedisNotifier) Notify(ctx context.Context, ev Event) error {
	if _, err := n.pub.Publish(ctx, n.channel, ev.SubmissionID); err != nil {
		return appErr.Wrapf(err, appErr.NotifyFailed, "publish to %s failed", n.channel)
	}
	return nil
}

// KafkaNotifier emits the event as JSON keyed by submission id.
type KafkaNotifier struct {
	producer mq.Producer
	topic    string
}

func NewKafkaNotifier(producer mq.Producer, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Name() string { return "kafka" }

func (n *KafkaNotifier) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return appErr.Wrapf(err, appErr.NotifyFailed, "encode event failed")
	}
	msg := mq.NewMessage(ev.SubmissionID, body)
	msg.SetHeader("event", "submission.completed")
	if err := n.producer.Publish(ctx, n.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.NotifyFailed, "publish to %s failed", n.topic)
	}
	return nil
}
