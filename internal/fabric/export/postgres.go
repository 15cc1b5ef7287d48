// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS fabric_counters (
//   switch_id INT NOT NULL,
//   metric TEXT NOT NULL,
//   value BIGINT NOT NULL,
//   PRIMARY KEY (switch_id, metric)
// );
//
// CREATE TABLE IF NOT EXISTS fabric_applied_commits (
//   commit_id TEXT PRIMARY KEY,
//   switch_id INT NOT NULL,
//   metric TEXT NOT NULL,
//   delta BIGINT NOT NULL,
//   ts TIMESTAMPTZ NOT NULL DEFAULT now()
// );

// PostgresSink applies counter-delta commits idempotently via the
// insert-marker-then-conditional-update pattern. Not constructed by
// BuildSink's default demo path: no *sql.DB is available without an
// operator-supplied connection, so it stays reachable only through an
// explicit caller that has one (see BuildSink's "postgres" case).
type PostgresSink struct {
	db                *sql.DB
	createMissingKeys bool
	defaultTimeout    time.Duration
}

func NewPostgresSink(db *sql.DB, createMissingKeys bool) *PostgresSink {
	return &PostgresSink{db: db, createMissingKeys: createMissingKeys, defaultTimeout: 10 * time.Second}
}

func (p *PostgresSink) CommitBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if p.createMissingKeys {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fabric_counters(switch_id, metric, value) VALUES ($1,$2,0) ON CONFLICT DO NOTHING`,
				e.SwitchID, e.Metric); err != nil {
				return fmt.Errorf("insert fabric_counters(%d,%s): %w", e.SwitchID, e.Metric, err)
			}
		}
	}

	for _, e := range entries {
		if e.CommitID == "" {
			return errors.New("export.Entry.CommitID must be set")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO fabric_applied_commits(commit_id, switch_id, metric, delta) VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING`,
			e.CommitID, e.SwitchID, e.Metric, e.Delta)
		if err != nil {
			return fmt.Errorf("insert fabric_applied_commits(%s): %w", e.CommitID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue // marker already present: this commit was applied before.
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE fabric_counters SET value = value + $4
               WHERE switch_id = $2 AND metric = $3 AND NOT EXISTS (
                 SELECT 1 FROM fabric_applied_commits WHERE commit_id = $1 AND switch_id != $2
               )`,
			e.CommitID, e.SwitchID, e.Metric, e.Delta); err != nil {
			return fmt.Errorf("update fabric_counters(%d,%s): %w", e.SwitchID, e.Metric, err)
		}
	}

	return tx.Commit()
}
