package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewQueue(client, nil)
	q.SetPollTimeout(time.Second)
	return q, mr
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	payload := ProcessRecordingPayload{RecordingID: uuid.New(), UserID: uuid.New(), AudioKey: "audio/u/r"}

	require.NoError(t, q.EnqueueProcessRecording(ctx, payload))
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, JobTypeProcessRecording, job.Type)
	require.Zero(t, job.Attempt)

	var got ProcessRecordingPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	require.Equal(t, payload, got)
}

func TestDequeueEmpty(t *testing.T) {
	q, _ := newTestQueue(t)
	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestDequeueDropsGarbage(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.Lpush(QueueRecordings, "not json")
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestRetryMovesToDLQAfterMaxRetries(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	job := &Job{ID: "j1", Type: JobTypeProcessRecording, Payload: json.RawMessage(`{}`)}

	for i := 1; i < MaxRetries; i++ {
		dead, err := q.Retry(ctx, job)
		require.NoError(t, err)
		require.False(t, dead)
		require.Equal(t, i, job.Attempt)
	}
	dead, err := q.Retry(ctx, job)
	require.NoError(t, err)
	require.True(t, dead)

	n, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	list, err := mr.List(QueueRecordings)
	require.NoError(t, err)
	require.Len(t, list, MaxRetries-1)
}
