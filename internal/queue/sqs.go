package queue

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxSQSDelay is the longest delivery delay SQS accepts.
const MaxSQSDelay = 900 * time.Second

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConfig locates the queue.
type SQSConfig struct {
	QueueURL string `mapstructure:"queue_url"`
	Region   string `mapstructure:"region"`
	// Endpoint overrides the service endpoint, for local emulators.
	Endpoint string `mapstructure:"endpoint"`
	// WaitTime is the long poll duration, at most 20s.
	WaitTime time.Duration `mapstructure:"wait_time"`
	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
}

// DefaultSQSConfig returns the polling defaults.
func DefaultSQSConfig() SQSConfig {
	return SQSConfig{
		Region:       "us-west-2",
		WaitTime:     20 * time.Second,
		ErrorBackoff: 5 * time.Second,
	}
}

// NewSQSClient builds a client from the default AWS credential chain.
func NewSQSClient(ctx context.Context, cfg SQSConfig) (*sqs.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "load aws config")
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// SQSQueue stores jobs as SQS messages. Delays above MaxSQSDelay are capped.
// Retries are sent back as new messages carrying the attempt count, and the
// original message is deleted once the job is settled.
type SQSQueue struct {
	settings
	client SQSAPI
	cfg    SQSConfig
}

var (
	_ Queue    = (*SQSQueue)(nil)
	_ Consumer = (*SQSQueue)(nil)
)

func NewSQSQueue(client SQSAPI, cfg SQSConfig, opts ...Option) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, goerrors.New("sqs queue url is required", goerrors.CategoryValidation).
			WithTextCode("QUEUE_SQS_URL_REQUIRED")
	}
	def := DefaultSQSConfig()
	if cfg.WaitTime <= 0 || cfg.WaitTime > def.WaitTime {
		cfg.WaitTime = def.WaitTime
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	return &SQSQueue{settings: newSettings(opts), client: client, cfg: cfg}, nil
}

func encodeJob(job Job) (string, error) {
	raw, err := msgpack.Marshal(job)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeJob(body string) (Job, error) {
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Job{}, err
	}
	var job Job
	if err := msgpack.Unmarshal(raw, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

func delaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d > MaxSQSDelay {
		d = MaxSQSDelay
	}
	secs := int32(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// Enqueue sends job with its delay. A zero ID is replaced with a new one.
func (q *SQSQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Delay > MaxSQSDelay {
		q.logger.Warn("job delay capped",
			slog.String("job", job.Name),
			slog.Duration("delay", job.Delay))
	}

	body, err := encodeJob(job)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encode job")
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.cfg.QueueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: delaySeconds(job.Delay),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"job": {DataType: aws.String("String"), StringValue: aws.String(job.Name)},
		},
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "send job "+job.Name)
	}
	return nil
}

// Run long polls the queue and hands each message to handler until ctx is
// done.
func (q *SQSQueue) Run(ctx context.Context, handler Handler) error {
	q.logger.Info("polling sqs queue", slog.String("queue_url", q.cfg.QueueURL))
	for {
		if ctx.Err() != nil {
			q.logger.Info("sqs polling stopped")
			return nil
		}

		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.cfg.QueueURL),
			MaxNumberOfMessages: int32(min(max(q.workers, 1), 10)),
			WaitTimeSeconds:     int32(q.cfg.WaitTime / time.Second),
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			q.logger.Error("receive from sqs failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-q.clock.After(q.cfg.ErrorBackoff):
			}
			continue
		}

		var wg sync.WaitGroup
		for _, msg := range out.Messages {
			wg.Add(1)
			go func(msg types.Message) {
				defer wg.Done()
				q.handleMessage(ctx, handler, msg)
			}(msg)
		}
		wg.Wait()
	}
}

func (q *SQSQueue) handleMessage(ctx context.Context, handler Handler, msg types.Message) {
	if msg.Body == nil {
		q.logger.Warn("sqs message without body")
		q.delete(ctx, msg)
		return
	}

	job, err := decodeJob(*msg.Body)
	if err != nil {
		q.logger.Error("undecodable sqs message dropped",
			slog.String("message_id", aws.ToString(msg.MessageId)),
			slog.Any("error", err))
		q.delete(ctx, msg)
		return
	}

	result, err := execute(ctx, q.logger, handler, &job)
	switch result {
	case outcomeRetry:
		job.Delay = job.BackoffFor(job.Attempt)
		if err := q.Enqueue(ctx, job); err != nil {
			// leave the message for redelivery after its visibility timeout
			q.logger.Error("requeue failed", slog.String("job", job.Name), slog.Any("error", err))
			return
		}
	case outcomeFailed:
		q.failed(ctx, job, err)
	}
	q.delete(ctx, msg)
}

func (q *SQSQueue) delete(ctx context.Context, msg types.Message) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.cfg.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		q.logger.Error("delete sqs message failed",
			slog.String("message_id", aws.ToString(msg.MessageId)),
			slog.Any("error", err))
	}
}
