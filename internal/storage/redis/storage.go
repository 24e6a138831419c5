package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/storage"
)

// errTooMuchContention is returned when optimistic retries are exhausted
var errTooMuchContention = errors.New("redis transaction retries exhausted")

// Storage is a Redis-backed implementation of the storage gateway
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = DefaultConfig().MaxTxRetries
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Gateway = (*Storage)(nil)

// watch runs fn in an optimistic transaction over keys, retrying when a
// watched key changes underneath it
func (s *Storage) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < s.cfg.MaxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return storage.Wrap(err)
	}
	return storage.Wrap(errTooMuchContention)
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, roomKey(room.Code), data, s.cfg.RoomTTL).Result()
	if err != nil {
		return storage.Wrap(err)
	}
	if !created {
		return model.ErrRoomExists
	}

	return storage.Wrap(s.client.SAdd(ctx, roomsIndexKey(), string(room.Code)).Err())
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, storage.Wrap(err)
	}

	var room model.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, storage.Wrap(err)
	}
	return &room, nil
}

func (s *Storage) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	exists, err := s.client.Exists(ctx, roomKey(code)).Result()
	if err != nil {
		return false, storage.Wrap(err)
	}
	return exists > 0, nil
}

func (s *Storage) ListRooms(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	codes, err := s.client.SMembers(ctx, roomsIndexKey()).Result()
	if err != nil {
		return nil, storage.Wrap(err)
	}

	rooms := make([]*model.Room, 0, len(codes))
	if len(codes) == 0 {
		return rooms, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = roomKey(model.RoomCode(code))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storage.Wrap(err)
	}

	var expired []any
	for i, val := range values {
		str, ok := val.(string)
		if !ok {
			expired = append(expired, codes[i])
			continue
		}
		var room model.Room
		if err := json.Unmarshal([]byte(str), &room); err != nil {
			continue // Skip invalid data
		}
		if filter.Matches(&room) {
			rooms = append(rooms, &room)
		}
	}

	// Drop index entries whose room has expired
	if len(expired) > 0 {
		_ = s.client.SRem(ctx, roomsIndexKey(), expired...).Err()
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// updateRoom applies fn to the stored room under WATCH so concurrent writers
// never lose an update
func (s *Storage) updateRoom(ctx context.Context, code model.RoomCode, fn func(room *model.Room) error) error {
	key := roomKey(code)
	return s.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrRoomNotFound
			}
			return err
		}

		var room model.Room
		if err := json.Unmarshal(data, &room); err != nil {
			return err
		}
		if err := fn(&room); err != nil {
			return err
		}

		updated, err := json.Marshal(&room)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
}

func (s *Storage) SetRoomStatus(ctx context.Context, code model.RoomCode, status model.RoomStatus, at time.Time) error {
	return s.updateRoom(ctx, code, func(room *model.Room) error {
		return room.ApplyStatus(status, at)
	})
}

func (s *Storage) SetResultsPublished(ctx context.Context, code model.RoomCode, published bool) error {
	return s.updateRoom(ctx, code, func(room *model.Room) error {
		room.ResultsPublished = published
		return nil
	})
}

// Participant operations

func (s *Storage) UpsertParticipant(ctx context.Context, code model.RoomCode, p model.Participant) error {
	rKey := roomKey(code)
	pKey := participantsKey(code)
	field := string(p.UserID)

	return s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, rKey).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return model.ErrRoomNotFound
		}

		// Keep the original join time on re-join
		existing, err := tx.HGet(ctx, pKey, field).Bytes()
		switch {
		case err == nil:
			var prev model.Participant
			if err := json.Unmarshal(existing, &prev); err == nil {
				p.JoinedAt = prev.JoinedAt
			}
		case !errors.Is(err, redis.Nil):
			return err
		}

		data, err := json.Marshal(p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, pKey, field, data)
			if s.cfg.RoomTTL > 0 {
				pipe.Expire(ctx, pKey, s.cfg.RoomTTL) // Keep hash TTL in sync
			}
			return nil
		})
		return err
	}, rKey, pKey)
}

func (s *Storage) GetParticipants(ctx context.Context, code model.RoomCode) ([]model.Participant, error) {
	if err := s.requireRoom(ctx, code); err != nil {
		return nil, err
	}

	values, err := s.client.HVals(ctx, participantsKey(code)).Result()
	if err != nil {
		return nil, storage.Wrap(err)
	}

	members := make([]model.Participant, 0, len(values))
	for _, val := range values {
		var p model.Participant
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			continue // Skip invalid data
		}
		members = append(members, p)
	}
	storage.SortParticipants(members)
	return members, nil
}

// Result operations

func (s *Storage) UpsertResult(ctx context.Context, code model.RoomCode, userID model.UserID, update model.ResultUpdate, at time.Time) (*model.Result, error) {
	rKey := roomKey(code)
	resKey := resultsKey(code)
	field := string(userID)

	var merged model.Result
	err := s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, rKey).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return model.ErrRoomNotFound
		}

		var prev *model.Result
		existing, err := tx.HGet(ctx, resKey, field).Bytes()
		switch {
		case err == nil:
			var stored model.Result
			if err := json.Unmarshal(existing, &stored); err != nil {
				return err
			}
			prev = &stored
		case !errors.Is(err, redis.Nil):
			return err
		}

		merged = update.Apply(prev, userID, at)
		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, resKey, field, data)
			if s.cfg.RoomTTL > 0 {
				pipe.Expire(ctx, resKey, s.cfg.RoomTTL)
			}
			return nil
		})
		return err
	}, rKey, resKey)
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func (s *Storage) GetResults(ctx context.Context, code model.RoomCode) ([]model.Result, error) {
	if err := s.requireRoom(ctx, code); err != nil {
		return nil, err
	}

	values, err := s.client.HVals(ctx, resultsKey(code)).Result()
	if err != nil {
		return nil, storage.Wrap(err)
	}

	results := make([]model.Result, 0, len(values))
	for _, val := range values {
		var r model.Result
		if err := json.Unmarshal([]byte(val), &r); err != nil {
			continue // Skip invalid data
		}
		results = append(results, r)
	}
	storage.SortResults(results)
	return results, nil
}

func (s *Storage) requireRoom(ctx context.Context, code model.RoomCode) error {
	exists, err := s.RoomExists(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", model.ErrRoomNotFound, code)
	}
	return nil
}
