// Package remotetest provides a fault-injecting remote.Store wrapper for tests.
package remotetest

import (
	"context"
	"errors"
	"sync"

	"github.com/collectr/collectr/internal/remote"
)

// Operation names recorded by Store.
const (
	OpSelect      = "select"
	OpCount       = "count"
	OpInsert      = "insert"
	OpUpdate      = "update"
	OpUpdateWhere = "update_where"
	OpDelete      = "delete"
	OpDeleteWhere = "delete_where"
)

// Call is one recorded store call.
type Call struct {
	Op    string
	Table string
	ID    int64
	Row   remote.Row
}

// Write reports whether the call modifies data.
func (c Call) Write() bool {
	return c.Op != OpSelect && c.Op != OpCount
}

type fault struct {
	op, table string
	match     func(Call) bool
	err       error
	remaining int // < 0 means forever
}

// Store wraps a remote.Store, records every call and fails the ones that match an
// injected fault. A failed call never reaches the wrapped store.
type Store struct {
	next remote.Store

	mu     sync.Mutex
	calls  []Call
	faults []*fault
}

var _ remote.Store = (*Store)(nil)

// Wrap returns a recording wrapper around next.
func Wrap(next remote.Store) *Store {
	return &Store{next: next}
}

// Fail makes every op on table fail with err. An empty table matches all tables.
func (s *Store) Fail(op, table string, err error) *Store {
	return s.add(op, table, nil, err, -1)
}

// FailOnce makes the next op on table fail with err.
func (s *Store) FailOnce(op, table string, err error) *Store {
	return s.add(op, table, nil, err, 1)
}

// FailWhen makes op on table fail with err for calls accepted by match.
func (s *Store) FailWhen(op, table string, match func(Call) bool, err error) *Store {
	return s.add(op, table, match, err, -1)
}

func (s *Store) add(op, table string, match func(Call) bool, err error, times int) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{op: op, table: table, match: match, err: err, remaining: times})
	return s
}

// Heal removes every injected fault.
func (s *Store) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Calls returns a copy of the recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Writes returns the recorded calls that modify data.
func (s *Store) Writes() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Write() {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets the recorded calls.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Store) record(c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	for _, f := range s.faults {
		if f.remaining == 0 || f.op != c.Op || (f.table != "" && f.table != c.Table) {
			continue
		}
		if f.match != nil && !f.match(c) {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		return f.err
	}
	return nil
}

func (s *Store) Select(ctx context.Context, table string, q remote.Query) ([]remote.Row, error) {
	if err := s.record(Call{Op: OpSelect, Table: table}); err != nil {
		return nil, err
	}
	return s.next.Select(ctx, table, q)
}

func (s *Store) Count(ctx context.Context, table string, filters ...remote.Filter) (int, error) {
	if err := s.record(Call{Op: OpCount, Table: table}); err != nil {
		return 0, err
	}
	return s.next.Count(ctx, table, filters...)
}

func (s *Store) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	if err := s.record(Call{Op: OpInsert, Table: table, Row: row}); err != nil {
		return nil, err
	}
	return s.next.Insert(ctx, table, row)
}

func (s *Store) Update(ctx context.Context, table string, id int64, patch remote.Row) (remote.Row, error) {
	if err := s.record(Call{Op: OpUpdate, Table: table, ID: id, Row: patch}); err != nil {
		return nil, err
	}
	return s.next.Update(ctx, table, id, patch)
}

func (s *Store) UpdateWhere(ctx context.Context, table string, match, patch remote.Row) ([]remote.Row, error) {
	merged := match.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	if err := s.record(Call{Op: OpUpdateWhere, Table: table, Row: merged}); err != nil {
		return nil, err
	}
	return s.next.UpdateWhere(ctx, table, match, patch)
}

func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	if err := s.record(Call{Op: OpDelete, Table: table, ID: id}); err != nil {
		return err
	}
	return s.next.Delete(ctx, table, id)
}

func (s *Store) DeleteWhere(ctx context.Context, table string, match remote.Row) (int64, error) {
	if err := s.record(Call{Op: OpDeleteWhere, Table: table, Row: match}); err != nil {
		return 0, err
	}
	return s.next.DeleteWhere(ctx, table, match)
}

// Rejected returns an injected constraint violation.
func Rejected(v remote.Violation) error {
	return remote.Rejected("injected", "", v, errors.New("injected rejection"))
}

// Unreachable returns an injected transport failure.
func Unreachable() error {
	return remote.Unreachable("injected", "", errors.New("connection reset by peer"))
}

// HasTag matches edge writes for the given tag id.
func HasTag(tagID int64) func(Call) bool {
	return func(c Call) bool {
		id, ok := c.Row.Int("tag_id")
		return ok && id == tagID
	}
}
