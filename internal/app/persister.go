package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MRamiBalles/TankArenaBridge/internal/events"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/bus"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/cache"
	"github.com/MRamiBalles/TankArenaBridge/internal/infra/storage"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
	"github.com/MRamiBalles/TankArenaBridge/internal/platform/metrics"
)

const persistTimeout = 2 * time.Second

// LedgerPersister translates domain events to storage rows. Episode results
// also become EpisodeRecords and are announced on the bus.
type LedgerPersister struct {
	events    storage.EventRepository
	episodes  storage.EpisodeRepository
	cache     *cache.EpisodeCache
	publisher bus.Publisher
	metrics   *metrics.Collector
	logger    *logger.Logger
}

// NewLedgerPersister creates the adapter. cache and publisher may be nil.
func NewLedgerPersister(ev storage.EventRepository, ep storage.EpisodeRepository, c *cache.EpisodeCache, p bus.Publisher, m *metrics.Collector, log *logger.Logger) *LedgerPersister {
	if p == nil {
		p = bus.NopPublisher{}
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &LedgerPersister{events: ev, episodes: ep, cache: c, publisher: p, metrics: m, logger: log}
}

// Append implements events.EventPersister.
func (lp *LedgerPersister) Append(event events.GameEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	start := time.Now()
	err := lp.append(ctx, event)
	lp.metrics.RecordEventWrite(time.Since(start), err)
	return err
}

func (lp *LedgerPersister) append(ctx context.Context, event events.GameEvent) error {
	payload, err := payloadMap(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload of %s: %w", event.Type, err)
	}
	err = lp.events.Append(ctx, storage.GameEvent{
		ID:        event.ID,
		EpisodeID: event.EpisodeID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Tick:      event.Tick,
		Payload:   payload,
	})
	if err != nil {
		return err
	}

	result, ok := event.Payload.(events.EpisodeResultPayload)
	if !ok {
		return nil
	}
	rec := EpisodeRecordFrom(result)
	if err := lp.episodes.Upsert(ctx, rec); err != nil {
		return err
	}
	if lp.cache != nil {
		lp.cache.Invalidate(rec.ID)
	}
	if err := lp.publisher.PublishEpisode(ctx, rec); err != nil {
		// The ledger already has the record.
		lp.logger.Warn("failed to publish episode", "episode", rec.ID, "err", err)
	}
	return nil
}

// EpisodeRecordFrom converts an episode result event payload to a ledger row.
func EpisodeRecordFrom(p events.EpisodeResultPayload) storage.EpisodeRecord {
	return storage.EpisodeRecord{
		ID:             p.EpisodeID,
		Number:         p.Number,
		StartedAt:      p.StartedAt,
		EndedAt:        p.EndedAt,
		Ticks:          p.Ticks,
		Exchanges:      p.Exchanges,
		Winner:         p.Winner,
		Cause:          p.Cause,
		Fingerprint:    p.Fingerprint,
		TrajectoryPath: p.TrajectoryPath,
	}
}

func payloadMap(payload interface{}) (map[string]interface{}, error) {
	if payload == nil {
		return nil, nil
	}
	if m, ok := payload.(map[string]interface{}); ok {
		return m, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"value": json.RawMessage(data)}, nil
	}
	return m, nil
}
