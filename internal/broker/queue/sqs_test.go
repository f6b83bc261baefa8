package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemanja-m/inferq/internal/broker/core"
)

// fakeSQS is an in-memory stand-in for the SQS API.
type fakeSQS struct {
	mu       sync.Mutex
	messages []types.Message
	deleted  []string
	sent     []*sqs.SendMessageInput
	received []*sqs.ReceiveMessageInput
	err      error
	seq      int
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.seq++
	f.sent = append(f.sent, in)
	f.messages = append(f.messages, types.Message{
		Body:          in.MessageBody,
		ReceiptHandle: aws.String("rh-" + strconv.Itoa(f.seq)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	})
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.received = append(f.received, in)
	if len(f.messages) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{msg}}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, _ *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.GetQueueAttributesOutput{
		Attributes: map[string]string{"ApproximateNumberOfMessages": strconv.Itoa(len(f.messages))},
	}, nil
}

func TestSQSQueue_EnqueueDequeueDeletesWithoutVisibility(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, SQSQueueConfig{QueueURL: "https://sqs.local/jobs"})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newJob("a")))
	assert.Nil(t, fake.sent[0].MessageGroupId)

	d, ok, err := q.Dequeue(ctx, 3*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", d.Job.ID)
	assert.Empty(t, d.Receipt)
	assert.Equal(t, []string{"rh-1"}, fake.deleted)
	assert.Equal(t, int32(3), fake.received[0].WaitTimeSeconds)
	assert.Zero(t, fake.received[0].VisibilityTimeout)
}

func TestSQSQueue_VisibilityKeepsMessageUntilAck(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, SQSQueueConfig{QueueURL: "https://sqs.local/jobs", VisibilityTimeout: 30 * time.Second})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newJob("a")))

	d, ok, err := q.Dequeue(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "rh-1", d.Receipt)
	assert.Empty(t, fake.deleted)
	assert.Equal(t, int32(maxWaitSeconds), fake.received[0].WaitTimeSeconds)
	assert.Equal(t, int32(30), fake.received[0].VisibilityTimeout)

	require.NoError(t, q.Ack(ctx, d))
	assert.Equal(t, []string{"rh-1"}, fake.deleted)
}

func TestSQSQueue_FIFOQueueSetsGroupAndDeduplication(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, SQSQueueConfig{QueueURL: "https://sqs.local/jobs.fifo"})

	require.NoError(t, q.Enqueue(context.Background(), newJob("a")))
	assert.Equal(t, "a", aws.ToString(fake.sent[0].MessageDeduplicationId))
	assert.NotEmpty(t, aws.ToString(fake.sent[0].MessageGroupId))
}

func TestSQSQueue_Capacity(t *testing.T) {
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, SQSQueueConfig{QueueURL: "https://sqs.local/jobs", Capacity: 1})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newJob("a")))
	assert.ErrorIs(t, q.Enqueue(ctx, newJob("b")), core.ErrQueueFull)
}

func TestSQSQueue_EmptyReceive(t *testing.T) {
	q := NewSQSQueue(&fakeSQS{}, SQSQueueConfig{QueueURL: "https://sqs.local/jobs"})

	_, ok, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQSQueue_BackendErrorsAreUnavailable(t *testing.T) {
	fake := &fakeSQS{err: errors.New("connection refused")}
	q := NewSQSQueue(fake, SQSQueueConfig{QueueURL: "https://sqs.local/jobs"})
	ctx := context.Background()

	assert.ErrorIs(t, q.Enqueue(ctx, newJob("a")), core.ErrQueueUnavailable)
	_, _, err := q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, core.ErrQueueUnavailable)
}

func TestWaitSeconds(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    int32
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{time.Hour, maxWaitSeconds},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, waitSeconds(tt.timeout), tt.timeout.String())
	}
}
