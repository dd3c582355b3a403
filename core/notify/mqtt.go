// Package notify publishes job results to the broker over a long-lived,
// mutually-authenticated MQTT session.
package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"iris/core/config"
	"iris/core/errors"
	"iris/core/jobs"
	"iris/core/logger"
	"iris/core/metrics"
)

// Publisher sends job results to a broker topic with acknowledged delivery.
type Publisher interface {
	Publish(ctx context.Context, result jobs.JobResult) error
	Close()
}

// MQTTPublisher holds one process-lifetime broker connection. Keep-alive
// pings run on the client's own background goroutine; publishes are
// synchronous calls from the consumer loop, so Close never races an
// in-flight publish.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTPublisher performs the three-credential handshake (root CA, client
// certificate, client key) and connects. A handshake or connection failure
// here is fatal to the process: the worker cannot run without its
// notification channel.
func NewMQTTPublisher(ctx context.Context, cfg config.BrokerConfig) (*MQTTPublisher, error) {
	tlsCfg, err := newTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	clientID := fmt.Sprintf("%s-%s", cfg.ClientIDPrefix, uuid.NewString()[:8])
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tls://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetTLSConfig(tlsCfg).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectTimeout(30 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, errors.Wrap(errors.ErrUnavailable, "broker connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "broker connect failed")
	}

	logger.Info(ctx, "connected to broker",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port),
		zap.String("topic", cfg.Topic), zap.String("client_id", clientID))

	return &MQTTPublisher{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: time.Duration(cfg.PublishTimeout) * time.Second,
	}, nil
}

// Publish serializes the result and sends it with acknowledged delivery,
// waiting at most the configured timeout for the broker ack. Callers treat
// a failure as best-effort: the stored artifact and document remain the
// authoritative result.
func (p *MQTTPublisher) Publish(ctx context.Context, result jobs.JobResult) error {
	payload, err := result.Payload()
	if err != nil {
		metrics.Publishes.WithLabelValues(metrics.PublishFailed).Inc()
		return errors.Wrap(err, "serialize result")
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		metrics.Publishes.WithLabelValues(metrics.PublishFailed).Inc()
		return errors.Wrap(errors.ErrUnavailable, "broker ack timed out")
	}
	if err := token.Error(); err != nil {
		metrics.Publishes.WithLabelValues(metrics.PublishFailed).Inc()
		return errors.Wrap(err, "publish failed")
	}

	metrics.Publishes.WithLabelValues(metrics.PublishOK).Inc()
	logger.Debug(ctx, "result published",
		zap.String("topic", p.topic), zap.String("key", result.Key), zap.String("status", result.Status))
	return nil
}

// Close disconnects from the broker, letting the client flush in-flight
// work for a short grace period.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// newTLSConfig builds the mutual-TLS configuration from the three
// credential files. TLS 1.2 is the floor the broker requires.
func newTLSConfig(cfg config.BrokerConfig) (*tls.Config, error) {
	caPEM, err := os.ReadFile(cfg.RootCAFile)
	if err != nil {
		return nil, errors.Wrap(err, "read root CA")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New("root CA file contains no usable certificates")
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "load client certificate")
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
