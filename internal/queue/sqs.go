package queue

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadqual/internal/config"
)

// Consumer receives and acknowledges trigger messages.
type Consumer interface {
	Receive(ctx context.Context, max int) ([]RawMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// sqsAPI is the slice of the SQS client the consumer uses.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConsumer implements Consumer against an SQS queue.
type SQSConsumer struct {
	client         sqsAPI
	queueURL       string
	waitTimeSecs   int32
	visibilitySecs int32
}

// NewSQS creates an SQSConsumer from configuration.
func NewSQS(ctx context.Context, cfg config.QueueConfig, region string) (*SQSConsumer, error) {
	if cfg.URL == "" {
		return nil, eris.New("queue: url not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "queue: load aws config")
	}
	return &SQSConsumer{
		client:         sqs.NewFromConfig(awsCfg),
		queueURL:       cfg.URL,
		waitTimeSecs:   int32(cfg.WaitTimeSecs),
		visibilitySecs: int32(cfg.VisibilitySecs),
	}, nil
}

// Receive long-polls for up to max messages. SQS caps a single receive
// at 10, so larger requests are satisfied across repeated calls until a
// poll comes back empty.
func (c *SQSConsumer) Receive(ctx context.Context, max int) ([]RawMessage, error) {
	var out []RawMessage
	for len(out) < max {
		n := int32(max - len(out))
		if n > 10 {
			n = 10
		}
		resp, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: n,
			WaitTimeSeconds:     c.waitTimeSecs,
			VisibilityTimeout:   c.visibilitySecs,
		})
		if err != nil {
			return nil, eris.Wrap(err, "queue: receive")
		}
		if len(resp.Messages) == 0 {
			break
		}
		for _, m := range resp.Messages {
			out = append(out, RawMessage{
				ID:            aws.ToString(m.MessageId),
				Body:          aws.ToString(m.Body),
				ReceiptHandle: aws.ToString(m.ReceiptHandle),
			})
		}
	}
	return out, nil
}

func (c *SQSConsumer) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return eris.Wrap(err, "queue: delete")
}
