// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"io"
	"log"
	"time"

	"github.com/hashicorp/go-memdb"
)

const (
	asyncCallsTableName = "async_calls"
)

var dbSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		asyncCallsTableName: {
			Name: asyncCallsTableName,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Handle"},
				},
				"state": {
					Name:    "state",
					Indexer: &memdb.UintFieldIndex{Field: "State"},
				},
				"finish_time": {
					Name:    "finish_time",
					Indexer: &TimeFieldIndex{Field: "FinishTime"},
				},
			},
		},
	},
}

type StateStore struct {
	AsyncCalls *AsyncCallStore

	db *memdb.MemDB
}

func NewStateStore() (*StateStore, error) {
	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return nil, err
	}

	return &StateStore{
		db: db,
		AsyncCalls: &AsyncCallStore{
			db:           db,
			tableName:    asyncCallsTableName,
			logger:       defaultLogger,
			TimeProvider: time.Now,
		},
	}, nil
}

func (s *StateStore) SetLogger(logger *log.Logger) {
	s.AsyncCalls.logger = logger
}

var defaultLogger = log.New(io.Discard, "", 0)
