// Package localdb is a directory.Provider backed by an embedded badger
// database. Values are msgpack-encoded under entity-prefixed keys:
//
//	employee/<id>                     Employee
//	tag/<rfid>                        employee id
//	notification/<employeeId>/<id>    Notification
//	worklog/<ksuid>                   WorkLog
package localdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	employeeEntity     = "employee"
	tagEntity          = "tag"
	notificationEntity = "notification"
	worklogEntity      = "worklog"
)

type Options struct {
	// Dir holds the database files. Empty means in-memory.
	Dir    string
	Clock  clock.Clock
	Logger zerolog.Logger
}

type Store struct {
	db    *badger.DB
	clock clock.Clock
	log   zerolog.Logger
}

var _ directory.Provider = (*Store)(nil)

func Open(opts Options) (*Store, error) {
	log := opts.Logger.With().Str("component", "localdb").Logger()

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{log})
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	s := &Store{db: db, clock: opts.Clock, log: log}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	return s, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

// Import writes every employee and notification in seed, replacing
// records with the same id. A re-imported employee whose tag changed
// loses the old tag.
func (s *Store) Import(seed directory.Seed) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range seed.Employees {
			var prev directory.Employee
			switch err := get(txn, key(employeeEntity, e.ID), &prev); {
			case err == nil && prev.RFIDTag != e.RFIDTag:
				if err := releaseTag(txn, prev.RFIDTag, e.ID); err != nil {
					return err
				}
			case err != nil && !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := set(txn, key(employeeEntity, e.ID), e); err != nil {
				return err
			}
			if err := txn.Set(key(tagEntity, e.RFIDTag), []byte(e.ID)); err != nil {
				return err
			}
		}
		for _, n := range seed.Notifications {
			if err := set(txn, key(notificationEntity, n.EmployeeID, n.ID), n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to import seed: %w", err)
	}
	s.log.Info().
		Int("employees", len(seed.Employees)).
		Int("notifications", len(seed.Notifications)).
		Msg("directory imported")
	return nil
}

// releaseTag deletes the tag index entry unless an earlier record in the
// same import has already claimed the tag.
func releaseTag(txn *badger.Txn, tag, employeeID string) error {
	item, err := txn.Get(key(tagEntity, tag))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	owner, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if string(owner) != employeeID {
		return nil
	}
	return txn.Delete(key(tagEntity, tag))
}

// Empty reports whether no employee has been stored yet.
func (s *Store) Empty() (bool, error) {
	empty := true
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := prefixOf(employeeEntity)
		it.Seek(prefix)
		empty = !it.ValidForPrefix(prefix)
		return nil
	})
	return empty, err
}

func (s *Store) EmployeeByTag(ctx context.Context, tag string) (directory.Employee, error) {
	if err := ctx.Err(); err != nil {
		return directory.Employee{}, err
	}
	var e directory.Employee
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(tagEntity, tag))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return get(txn, key(employeeEntity, string(id)), &e)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return directory.Employee{}, fmt.Errorf("tag %s: %w", tag, directory.ErrNotFound)
	}
	if err != nil {
		return directory.Employee{}, fmt.Errorf("failed to look up tag %s: %w", tag, err)
	}
	return e, nil
}

// Employees lists every stored employee in id order.
func (s *Store) Employees(ctx context.Context) ([]directory.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var list []directory.Employee
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixOf(employeeEntity), func(val []byte) error {
			var e directory.Employee
			if err := msgpack.Unmarshal(val, &e); err != nil {
				return err
			}
			list = append(list, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	return list, nil
}

// Notifications returns the employee's notifications, newest first.
func (s *Store) Notifications(ctx context.Context, employeeID string) ([]directory.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list := []directory.Notification{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixOf(notificationEntity, employeeID), func(val []byte) error {
			var n directory.Notification
			if err := msgpack.Unmarshal(val, &n); err != nil {
				return err
			}
			list = append(list, n)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for %s: %w", employeeID, err)
	}
	directory.SortNewestFirst(list)
	return list, nil
}

// WriteWorkLog records a start or stop of work and updates the
// employee's current status in the same transaction.
func (s *Store) WriteWorkLog(ctx context.Context, employeeID string, status directory.WorkStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("unknown work status %q", status)
	}

	now := s.clock.Now().UTC()
	id, err := ksuid.NewRandomWithTime(now)
	if err != nil {
		return fmt.Errorf("failed to generate work log id: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var e directory.Employee
		if err := get(txn, key(employeeEntity, employeeID), &e); err != nil {
			return err
		}
		e.WorkStatus = status
		e.LastWorkAction = &now
		if err := set(txn, key(employeeEntity, employeeID), e); err != nil {
			return err
		}
		return set(txn, key(worklogEntity, id.String()), directory.WorkLog{
			ID:         id.String(),
			EmployeeID: employeeID,
			Status:     status,
			Timestamp:  now,
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("employee %s: %w", employeeID, directory.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to write work log: %w", err)
	}
	s.log.Debug().Str("employee", employeeID).Str("status", string(status)).Msg("work log written")
	return nil
}

// WorkLogs returns the employee's work log, oldest first. An empty
// employeeID lists every entry.
func (s *Store) WorkLogs(ctx context.Context, employeeID string) ([]directory.WorkLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var list []directory.WorkLog
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixOf(worklogEntity), func(val []byte) error {
			var w directory.WorkLog
			if err := msgpack.Unmarshal(val, &w); err != nil {
				return err
			}
			if employeeID == "" || w.EmployeeID == employeeID {
				list = append(list, w)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list work logs: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})
	return list, nil
}

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, "/"))
}

func prefixOf(parts ...string) []byte {
	return append(key(parts...), '/')
}

func get(txn *badger.Txn, k []byte, v any) error {
	item, err := txn.Get(k)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, v)
	})
}

func set(txn *badger.Txn, k []byte, v any) error {
	buf, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", k, err)
	}
	return txn.Set(k, buf)
}

func scan(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
