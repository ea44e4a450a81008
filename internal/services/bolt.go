package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"coinflip-relay/internal/models"
)

const (
	BucketSettlements   = "settlements"
	BucketPlayerMatches = "player:matches"
	BucketIndexCursors  = "index:cursors"
)

var ErrBucketNotFound = errors.New("bucket doesn't exist")

// BoltStore is the embedded settlement store and match index used when no
// Redis server is configured.
type BoltStore struct {
	DB *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database path: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{
			BucketSettlements,
			BucketPlayerMatches,
			BucketIndexCursors,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database buckets: %w", err)
	}

	return &BoltStore{DB: db}, nil
}

func (s *BoltStore) Close() error {
	return s.DB.Close()
}

func (s *BoltStore) SaveSettlement(_ context.Context, settlement *models.Settlement) error {
	data, err := json.Marshal(settlement)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %w", err)
	}

	return s.DB.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(BucketSettlements))
		if root == nil {
			return fmt.Errorf("%s: %w", BucketSettlements, ErrBucketNotFound)
		}
		b, err := root.CreateBucketIfNotExists([]byte(settlement.MatchID))
		if err != nil {
			return err
		}
		return b.Put([]byte(settlement.ID), data)
	})
}

func (s *BoltStore) GetSettlements(_ context.Context, matchID string) ([]*models.Settlement, error) {
	settlements := []*models.Settlement{}

	err := s.DB.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(BucketSettlements))
		if root == nil {
			return fmt.Errorf("%s: %w", BucketSettlements, ErrBucketNotFound)
		}
		b := root.Bucket([]byte(matchID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var settlement models.Settlement
			if err := json.Unmarshal(v, &settlement); err != nil {
				return err
			}
			settlements = append(settlements, &settlement)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read settlements: %w", err)
	}

	sort.Slice(settlements, func(i, j int) bool {
		return settlements[i].CreatedAt.Before(settlements[j].CreatedAt)
	})
	return settlements, nil
}

func (s *BoltStore) AddPlayerMatch(_ context.Context, player, matchID string) error {
	return s.DB.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(BucketPlayerMatches))
		if root == nil {
			return fmt.Errorf("%s: %w", BucketPlayerMatches, ErrBucketNotFound)
		}
		b, err := root.CreateBucketIfNotExists([]byte(strings.ToLower(player)))
		if err != nil {
			return err
		}
		if b.Get([]byte(matchID)) != nil {
			return nil
		}
		return b.Put([]byte(matchID), int64ToBytes(time.Now().UnixNano()))
	})
}

func (s *BoltStore) PlayerMatches(_ context.Context, player string, limit int) ([]string, error) {
	if limit <= 0 || limit > MaxPlayerMatches {
		limit = MaxPlayerMatches
	}

	type seen struct {
		id string
		at int64
	}
	var all []seen

	err := s.DB.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(BucketPlayerMatches))
		if root == nil {
			return fmt.Errorf("%s: %w", BucketPlayerMatches, ErrBucketNotFound)
		}
		b := root.Bucket([]byte(strings.ToLower(player)))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			all = append(all, seen{id: string(k), at: bytesToInt64(v)})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read player matches: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].at == all[j].at {
			return all[i].id > all[j].id
		}
		return all[i].at > all[j].at
	})
	if len(all) > limit {
		all = all[:limit]
	}

	ids := make([]string, len(all))
	for i, m := range all {
		ids[i] = m.id
	}
	return ids, nil
}

func (s *BoltStore) Cursor(_ context.Context, name string) (*string, error) {
	var cursor *string
	err := s.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketIndexCursors))
		if b == nil {
			return fmt.Errorf("%s: %w", BucketIndexCursors, ErrBucketNotFound)
		}
		if v := b.Get([]byte(name)); v != nil {
			c := string(v)
			cursor = &c
		}
		return nil
	})
	return cursor, err
}

func (s *BoltStore) SaveCursor(_ context.Context, name, cursor string) error {
	return s.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketIndexCursors))
		if b == nil {
			return fmt.Errorf("%s: %w", BucketIndexCursors, ErrBucketNotFound)
		}
		return b.Put([]byte(name), []byte(cursor))
	})
}

func int64ToBytes(i int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i))
	return buf
}

func bytesToInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
