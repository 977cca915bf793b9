package ingest

import (
	"context"
	"errors"
	"whalewatch/internal/pubsub/nats"

	natsgo "github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"
)

// Push source: every message on the subject is one raw swap event.
// Reconnects are the client's business, we just stay subscribed.
type NATSSource struct {
	log     logger.Logger
	client  *nats.Client
	subject string
	sink    Sink
}

func NewNATSSource(log logger.Logger, client *nats.Client, subject string, sink Sink) (*NATSSource, error) {
	if client == nil {
		return nil, errors.New("nats client is required")
	}
	if subject == "" {
		return nil, errors.New("subject is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}

	return &NATSSource{
		log:     log,
		client:  client,
		subject: subject,
		sink:    sink,
	}, nil
}

func (s *NATSSource) Name() string {
	return "nats:" + s.subject
}

func (s *NATSSource) Run(ctx context.Context) error {
	sub, err := s.client.Subscribe(s.subject, func(msg *natsgo.Msg) {
		s.sink.HandleRaw(ctx, msg.Data)
	})
	if err != nil {
		return err
	}
	defer func() {
		if uerr := sub.Unsubscribe(); uerr != nil {
			s.log.Warnf("Failed to unsubscribe from %s: %v", s.subject, uerr)
		}
	}()

	s.log.Infof("Ingesting swap events from NATS subject=%s", s.subject)

	<-ctx.Done()
	return nil
}

var _ Source = (*NATSSource)(nil)
