package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calderaops/meterbill/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig configures the NATS JetStream expiration publisher.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // how long to keep expiration events
	Replicas      int
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "METER_EVENTS",
		SubjectPrefix: "meter.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		MaxAge:        7 * 24 * time.Hour,
		Replicas:      1,
	}
}

// JetStreamNotifier publishes SessionExpired events to NATS JetStream so the
// UI collaborator (toasts, banners) can react without polling.
type JetStreamNotifier struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamNotifier(cfg JetStreamConfig) (*JetStreamNotifier, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	n := &JetStreamNotifier{nc: nc, js: js, config: cfg}
	if err := n.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return n, nil
}

func (n *JetStreamNotifier) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        n.config.StreamName,
		Description: "Timer session expiration events",
		Subjects:    []string{fmt.Sprintf("%s.>", n.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      n.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    n.config.Replicas,
	}

	if _, err := n.js.Stream(ctx, n.config.StreamName); err != nil {
		if _, err = n.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", n.config.StreamName).Msg("created JetStream stream")
	}
	return nil
}

func (n *JetStreamNotifier) SessionStarted(ctx context.Context, payload events.SessionStartedPayload) error {
	return n.publish(ctx, events.TypeSessionStarted, payload.SessionID, payload)
}

func (n *JetStreamNotifier) SessionExpired(ctx context.Context, payload events.SessionExpiredPayload) error {
	return n.publish(ctx, events.TypeSessionExpired, payload.SessionID, payload)
}

func (n *JetStreamNotifier) SessionStopped(ctx context.Context, payload events.SessionStoppedPayload) error {
	return n.publish(ctx, events.TypeSessionStopped, payload.SessionID, payload)
}

func (n *JetStreamNotifier) publish(ctx context.Context, eventType, sessionID string, payload any) error {
	subject := fmt.Sprintf("%s.%s", n.config.SubjectPrefix, eventType)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	// Session id plus event type is the dedup key: JetStream drops any
	// replayed publish for the same transition inside the duplicate window.
	ack, err := n.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{eventType},
			"Session-ID": []string{sessionID},
		},
	},
		jetstream.WithMsgID(fmt.Sprintf("%s.%s", sessionID, eventType)),
		jetstream.WithExpectStream(n.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Info().
		Str("subject", subject).
		Str("session_id", sessionID).
		Uint64("sequence", ack.Sequence).
		Msg("published session event")
	return nil
}

func (n *JetStreamNotifier) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}
