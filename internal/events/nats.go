package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"survey-backend/internal/config"
	"survey-backend/internal/instrument"
	"survey-backend/internal/logger"
)

const subjectRecordSaved = "record.saved"

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher publishes events to a JetStream stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     streamPublisher
	prefix string
	log    *logger.Logger
}

// Connect dials NATS and makes sure the stream exists.
func Connect(ctx context.Context, cfg config.EventsConfig, log *logger.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("survey-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	return &JetStreamPublisher{nc: nc, js: js, prefix: cfg.SubjectPrefix, log: log}, nil
}

func (p *JetStreamPublisher) subject(name string) string {
	return p.prefix + "." + name
}

// PublishRecordSaved sends ev and waits for the stream acknowledgement. The
// record id doubles as message id, so a retried publish is deduplicated.
func (p *JetStreamPublisher) PublishRecordSaved(ctx context.Context, ev RecordSaved) error {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "events", "nats", "publish.record_saved")
	defer span.End()
	span.SetEntity("collection_record", ev.RecordID)

	data, err := json.Marshal(ev)
	if err != nil {
		span.SetStatus("error")
		return fmt.Errorf("encode event: %w", err)
	}

	msgID := fmt.Sprintf("%s:%d", ev.RecordID, ev.SavedAt.UnixNano())
	ack, err := p.js.Publish(ctx, p.subject(subjectRecordSaved), data, jetstream.WithMsgID(msgID))
	if err != nil {
		span.SetStatus("error")
		return fmt.Errorf("publish %s: %w", p.subject(subjectRecordSaved), err)
	}
	span.SetMetadata("sequence", ack.Sequence)
	span.SetStatus("ok")
	p.log.Debug("event published", "subject", p.subject(subjectRecordSaved), "sequence", ack.Sequence)
	return nil
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}
