// Package bus publishes finished episode summaries to external consumers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/MRamiBalles/TankArenaBridge/internal/infra/storage"
)

// Publisher announces episode results.
type Publisher interface {
	PublishEpisode(ctx context.Context, rec storage.EpisodeRecord) error
	Close() error
}

// NopPublisher discards everything. Used when no NATS URL is configured.
type NopPublisher struct{}

func (NopPublisher) PublishEpisode(context.Context, storage.EpisodeRecord) error { return nil }
func (NopPublisher) Close() error                                                { return nil }

// NATSPublisher writes each episode into a JetStream key-value bucket keyed by episode ID.
// Watchers on the bucket see results as they land.
type NATSPublisher struct {
	conn *nats.Conn
	kv   jetstream.KeyValue
}

// DialNATS connects and creates the bucket if needed.
func DialNATS(ctx context.Context, url, bucket string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("tank-arena-bridge"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Finished arena episodes",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}

	return &NATSPublisher{conn: nc, kv: kv}, nil
}

func (p *NATSPublisher) PublishEpisode(ctx context.Context, rec storage.EpisodeRecord) error {
	data, err := EncodeEpisode(rec)
	if err != nil {
		return err
	}
	if _, err := p.kv.Put(ctx, EpisodeKey(rec.ID), data); err != nil {
		return fmt.Errorf("failed to publish episode %s: %w", rec.ID, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

// EpisodeKey is the bucket key for one episode.
func EpisodeKey(id string) string {
	return "episode." + id
}

// EncodeEpisode is the value written for one episode.
func EncodeEpisode(rec storage.EpisodeRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal episode: %w", err)
	}
	return data, nil
}
