package queue

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/nemanja-m/inferq/internal/broker/core"
)

// maxWaitSeconds is the longest long-poll SQS accepts.
const maxWaitSeconds = 20

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

type SQSQueueConfig struct {
	QueueURL          string
	Capacity          int
	VisibilityTimeout time.Duration
}

// SQSQueue is a job queue on Amazon SQS. SQS always hides received messages
// for a visibility timeout; without one configured the message is deleted as
// soon as it is received, which gives the discard-on-dequeue behaviour of the
// other backends. FIFO queues (".fifo" URL) keep per-producer order and use the
// job ID for deduplication.
type SQSQueue struct {
	client SQSAPI
	cfg    SQSQueueConfig
	fifo   bool
}

func NewSQSQueue(client SQSAPI, cfg SQSQueueConfig) *SQSQueue {
	return &SQSQueue{
		client: client,
		cfg:    cfg,
		fifo:   strings.HasSuffix(cfg.QueueURL, ".fifo"),
	}
}

func (q *SQSQueue) Enqueue(ctx context.Context, job core.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if q.cfg.Capacity > 0 {
		n, err := q.Len(ctx)
		if err != nil {
			return err
		}
		if n >= q.cfg.Capacity {
			return fmt.Errorf("%w: capacity %d reached", core.ErrQueueFull, q.cfg.Capacity)
		}
	}

	body, err := encodeEnvelope(job, 1)
	if err != nil {
		return err
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.cfg.QueueURL),
		MessageBody: aws.String(body),
	}
	if q.fifo {
		input.MessageGroupId = aws.String("inferq")
		input.MessageDeduplicationId = aws.String(job.ID)
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return unavailable(err)
	}
	return nil
}

func (q *SQSQueue) Dequeue(ctx context.Context, timeout time.Duration) (core.Delivery, bool, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.cfg.QueueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     waitSeconds(timeout),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	}
	if q.cfg.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(math.Ceil(q.cfg.VisibilityTimeout.Seconds()))
	}

	out, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.Delivery{}, false, ctxErr
		}
		return core.Delivery{}, false, unavailable(err)
	}
	if len(out.Messages) == 0 {
		return core.Delivery{}, false, nil
	}

	msg := out.Messages[0]
	env, err := decodeEnvelope(aws.ToString(msg.Body))
	if err != nil {
		// Poison message: remove it so it does not block the queue.
		_ = q.delete(ctx, aws.ToString(msg.ReceiptHandle))
		return core.Delivery{}, false, err
	}
	if count, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil && count > env.Attempt {
		env.Attempt = count
	}

	d := core.Delivery{Job: env.Job, Attempt: env.Attempt}
	if q.cfg.VisibilityTimeout > 0 {
		d.Receipt = aws.ToString(msg.ReceiptHandle)
		return d, true, nil
	}
	if err := q.delete(ctx, aws.ToString(msg.ReceiptHandle)); err != nil {
		return core.Delivery{}, false, err
	}
	return d, true, nil
}

func (q *SQSQueue) Ack(ctx context.Context, d core.Delivery) error {
	if d.Receipt == "" {
		return nil
	}
	return q.delete(ctx, d.Receipt)
}

func (q *SQSQueue) Len(ctx context.Context) (int, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.cfg.QueueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)])
	if err != nil {
		return 0, fmt.Errorf("unexpected queue length attribute: %w", err)
	}
	return n, nil
}

func (q *SQSQueue) Close() error {
	return nil
}

func (q *SQSQueue) delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.cfg.QueueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func waitSeconds(timeout time.Duration) int32 {
	secs := int32(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		return 1
	}
	if secs > maxWaitSeconds {
		return maxWaitSeconds
	}
	return secs
}
