// Package statestore persists open-position state to Redis so a
// restarted supervisor can tell its own positions from orphans. When
// Redis is unavailable the store degrades to an in-memory map and
// trading continues without persistence.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// positionKeyPrefix keys one position record, fxbot:position:{symbol}:{ticket}
	positionKeyPrefix = "fxbot:position"

	// positionSetPrefix keys the ticket set per symbol, fxbot:positions:{symbol}
	positionSetPrefix = "fxbot:positions"

	// recordTTL outlives any reasonable position; stale records are
	// cleaned up on load
	recordTTL = 7 * 24 * time.Hour
)

// PositionRecord is the durable snapshot of one tracked position
type PositionRecord struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Strategy   string    `json:"strategy"`
	Lots       float64   `json:"lots"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenTime   time.Time `json:"open_time"`
	Orphaned   bool      `json:"orphaned"`
	SavedAt    time.Time `json:"saved_at"`
}

// Config holds the Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store mirrors position state to Redis with a memory fallback
type Store struct {
	rdb *redis.Client
	log zerolog.Logger

	mu     sync.Mutex
	memory map[string]PositionRecord
}

// NewStore connects to Redis. A failed ping is logged, not fatal; the
// store runs memory-only until Redis comes back.
func NewStore(cfg Config, log zerolog.Logger) *Store {
	s := &Store{
		log:    log.With().Str("component", "statestore").Logger(),
		memory: make(map[string]PositionRecord),
	}
	if cfg.Addr == "" {
		s.log.Warn().Msg("no redis address configured, position state is memory-only")
		return s
	}

	s.rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.log.Warn().Err(err).Msg("redis unavailable, falling back to in-memory position state")
	} else {
		s.log.Info().Str("addr", cfg.Addr).Msg("position state store connected")
	}
	return s
}

// Close releases the Redis connection
func (s *Store) Close() error {
	if s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}

func positionKey(symbol string, ticket int64) string {
	return fmt.Sprintf("%s:%s:%d", positionKeyPrefix, symbol, ticket)
}

func positionSetKey(symbol string) string {
	return fmt.Sprintf("%s:%s", positionSetPrefix, symbol)
}

// Save writes one position record, mirroring it to memory so a Redis
// outage never loses the live view
func (s *Store) Save(ctx context.Context, rec PositionRecord) error {
	rec.SavedAt = time.Now().UTC()
	key := positionKey(rec.Symbol, rec.Ticket)

	s.mu.Lock()
	s.memory[key] = rec
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal position record: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, key, data, recordTTL)
	pipe.SAdd(ctx, positionSetKey(rec.Symbol), rec.Ticket)
	pipe.Expire(ctx, positionSetKey(rec.Symbol), recordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Int64("ticket", rec.Ticket).Msg("redis save failed, record kept in memory")
	}
	return nil
}

// Delete removes the record for a closed position
func (s *Store) Delete(ctx context.Context, symbol string, ticket int64) error {
	key := positionKey(symbol, ticket)

	s.mu.Lock()
	delete(s.memory, key)
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, positionSetKey(symbol), ticket)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Int64("ticket", ticket).Msg("redis delete failed")
	}
	return nil
}

// Load returns the persisted records for a symbol, preferring Redis and
// falling back to memory. Unreadable records are dropped from the set.
func (s *Store) Load(ctx context.Context, symbol string) ([]PositionRecord, error) {
	if s.rdb == nil {
		return s.loadMemory(symbol), nil
	}

	members, err := s.rdb.SMembers(ctx, positionSetKey(symbol)).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("redis load failed, using in-memory state")
		return s.loadMemory(symbol), nil
	}

	var out []PositionRecord
	for _, member := range members {
		data, err := s.rdb.Get(ctx, positionKeyPrefix+":"+symbol+":"+member).Bytes()
		if err == redis.Nil {
			s.rdb.SRem(ctx, positionSetKey(symbol), member)
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("ticket", member).Msg("unreadable position record skipped")
			continue
		}
		var rec PositionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn().Err(err).Str("ticket", member).Msg("corrupt position record dropped")
			s.rdb.SRem(ctx, positionSetKey(symbol), member)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) loadMemory(symbol string) []PositionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PositionRecord
	for _, rec := range s.memory {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	return out
}
