package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"iris/core/config"
)

// SQSQueue implements Queue against SQS. Each Receive is one long-poll for
// at most one message; the visibility timeout is set per receive so a
// processing worker keeps the message hidden from its peers.
type SQSQueue struct {
	client            *sqs.Client
	url               string
	waitSeconds       int32
	visibilitySeconds int32
}

// NewSQSQueue builds an SQS client from the AWS and queue sections of the
// configuration.
func NewSQSQueue(ctx context.Context, awsCfg config.AWSConfig, queueCfg config.QueueConfig) (*SQSQueue, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsCfg.Region),
	}
	if awsCfg.AccessKey != "" && awsCfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKey, awsCfg.SecretKey, ""),
		))
	}

	loaded, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(loaded, func(o *sqs.Options) {
		if awsCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
		}
	})

	return &SQSQueue{
		client:            client,
		url:               queueCfg.URL,
		waitSeconds:       queueCfg.WaitSeconds,
		visibilitySeconds: queueCfg.VisibilitySeconds,
	}, nil
}

// Receive long-polls the queue for at most one message.
func (q *SQSQueue) Receive(ctx context.Context) (*Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.waitSeconds,
		VisibilityTimeout:   q.visibilitySeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	return &Message{
		Body:    []byte(aws.ToString(m.Body)),
		Receipt: aws.ToString(m.ReceiptHandle),
	}, nil
}

// Delete acknowledges a delivery by its receipt token, removing the message
// from the queue.
func (q *SQSQueue) Delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
