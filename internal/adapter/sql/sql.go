// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sql implements the generic relational-database adapter (spec.md
// §4.1), grounded on original_source/driver/sql_driver_process.py (there
// built on pyodbc; here on database/sql plus a dialect-specific driver per
// db_type). A device's tags each name one column ("endereco"); Read fetches
// the most recent row once per scan and slices out each tag's column, Write
// inserts a new row, and WriteBatch additionally supports updating an
// existing row by id for the "/api/escrever_lote" multi-column case.
package sql

import (
	stdsql "database/sql"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	_ "github.com/alexbrainman/odbc"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/EngRafael35/Inlogic-ia/internal/adapter"
	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// Adapter implements adapter.Adapter (and adapter.BatchWriter) for
// ODBC/native-driver relational databases.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

type session struct {
	db    *sqlx.DB
	kind  string
	d     dialect
	table string
}

func (s *session) Alive() bool {
	return s.db != nil && s.db.Ping() == nil
}

func (s *session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (a *Adapter) Open(ctx context.Context, opts schema.DeviceOptions, tags []schema.TagConfig, timeout time.Duration) (adapter.Session, error) {
	kind := strings.ToLower(opts.DBKind)
	if kind == "" {
		kind = "sqlserver"
	}

	d, err := dialectFor(kind)
	if err != nil {
		return nil, adapter.NewError(adapter.KindConnect, "open", err)
	}

	connStr, err := dsn(kind, opts)
	if err != nil {
		return nil, adapter.NewError(adapter.KindConnect, "open", err)
	}

	if kind != "sqlite" && kind != "access" {
		if opts.Host == "" || opts.Database == "" || opts.DBUser == "" || opts.DBPassword == "" {
			return nil, adapter.NewError(adapter.KindConnect, "open", fmt.Errorf("host/database/user/password required for db_type %q", kind))
		}
	}

	table := opts.TableName
	if table == "" {
		table = "dados_processo"
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sqlx.ConnectContext(dialCtx, d.driverName, connStr)
	if err != nil {
		return nil, adapter.NewError(adapter.KindConnect, "open", err)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return &session{db: db, kind: kind, d: d, table: table}, nil
}

// peekColumns discovers the target table's column names by fetching a
// single row, the same "SELECT ... LIMIT 1"/"SELECT TOP 1 ..." probe the
// Python original issues before every query.
func (s *session) peekColumns(ctx context.Context) ([]string, error) {
	var query string
	if s.d.topOne {
		query = fmt.Sprintf("SELECT TOP 1 * FROM %s", s.d.quote(s.table))
	} else {
		query = fmt.Sprintf("SELECT * FROM %s LIMIT 1", s.d.quote(s.table))
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows.Columns()
}

// latestRow fetches the most recent row, ordered by a "timestamp" column
// when present, else by the table's first column (§4.1, matching
// _read_all_tags' col_ord selection).
func (s *session) latestRow(ctx context.Context) (map[string]any, error) {
	columns, err := s.peekColumns(ctx)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q has no columns", s.table)
	}

	orderCol := columns[0]
	for _, c := range columns {
		if strings.EqualFold(c, "timestamp") {
			orderCol = c
			break
		}
	}

	var query string
	if s.d.topOne {
		query = fmt.Sprintf("SELECT TOP 1 * FROM %s ORDER BY %s DESC", s.d.quote(s.table), s.d.quote(orderCol))
	} else {
		query = fmt.Sprintf("SELECT * FROM %s ORDER BY %s DESC LIMIT 1", s.d.quote(s.table), s.d.quote(orderCol))
	}

	row := s.db.QueryRowxContext(ctx, query)
	result := map[string]any{}
	if err := row.MapScan(result); err != nil {
		if err == stdsql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

func (a *Adapter) Read(ctx context.Context, sess adapter.Session, addrs []adapter.AddressRead) []adapter.ReadResult {
	s := sess.(*session)
	out := make([]adapter.ReadResult, len(addrs))

	row, err := s.latestRow(ctx)
	if err != nil {
		e := adapter.NewError(adapter.KindTransport, "read", err)
		for i := range out {
			out[i] = adapter.ReadResult{Err: e}
		}
		return out
	}

	for i, ar := range addrs {
		if row == nil {
			out[i] = adapter.ReadResult{Err: adapter.NewError(adapter.KindProtocol, "read", fmt.Errorf("no data"))}
			continue
		}
		val, ok := row[ar.Address]
		if !ok || val == nil {
			out[i] = adapter.ReadResult{Err: adapter.NewError(adapter.KindProtocol, "read", fmt.Errorf("column %q has no data", ar.Address))}
			continue
		}
		out[i] = adapter.ReadResult{Value: val, DataKind: ar.DataKind}
	}

	return out
}

// firstColumnInfo reports the table's first column name and whether it
// looks like a timestamp or an integer identity column, driving the
// auto-fill behaviour of _write_single_tag/_write_batch.
func (s *session) firstColumnInfo(ctx context.Context) (name string, isTime bool, isInt bool, err error) {
	var query string
	if s.d.topOne {
		query = fmt.Sprintf("SELECT TOP 1 * FROM %s", s.d.quote(s.table))
	} else {
		query = fmt.Sprintf("SELECT * FROM %s LIMIT 1", s.d.quote(s.table))
	}
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return "", false, false, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil || len(types) == 0 {
		return "", false, false, fmt.Errorf("table %q has no columns", s.table)
	}

	dbType := strings.ToLower(types[0].DatabaseTypeName())
	return types[0].Name(), strings.Contains(dbType, "date") || strings.Contains(dbType, "time"), strings.Contains(dbType, "int"), nil
}

func (s *session) nextIncrement(ctx context.Context, col string) (int64, error) {
	var max stdsql.NullInt64
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", s.d.quote(col), s.d.quote(s.table))
	if err := s.db.QueryRowxContext(ctx, query).Scan(&max); err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

// Write inserts a single-column row, auto-filling the table's first column
// with a timestamp or incrementing id when it differs from the written
// column (§4.1, mirroring _write_single_tag).
func (a *Adapter) Write(ctx context.Context, sess adapter.Session, address string, value any, dataKind schema.DataKind) adapter.WriteResult {
	s := sess.(*session)

	values := map[string]any{address: value}

	firstCol, isTime, isInt, err := s.firstColumnInfo(ctx)
	if err != nil {
		return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write", err)}
	}
	if firstCol != address {
		if err := fillFirstColumn(ctx, s, firstCol, isTime, isInt, values); err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write", err)}
		}
	}

	if err := s.insert(ctx, values); err != nil {
		return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write", err)}
	}
	return adapter.WriteResult{Confirmed: true, ConfirmValue: value}
}

// WriteBatch implements adapter.BatchWriter: inserts a new row, or updates
// rowID's row when given, across the supplied column->value map (§4.7
// "/api/escrever_lote", mirroring _write_batch).
func (a *Adapter) WriteBatch(ctx context.Context, sess adapter.Session, values map[string]any, rowID string) adapter.WriteResult {
	s := sess.(*session)

	cols := map[string]any{}
	for k, v := range values {
		cols[k] = v
	}

	firstCol, isTime, isInt, err := s.firstColumnInfo(ctx)
	if err != nil {
		return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write_batch", err)}
	}
	if _, present := cols[firstCol]; !present {
		if err := fillFirstColumn(ctx, s, firstCol, isTime, isInt, cols); err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write_batch", err)}
		}
	}

	if rowID != "" {
		if err := s.update(ctx, cols, rowID); err != nil {
			return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write_batch", err)}
		}
		return adapter.WriteResult{Confirmed: true}
	}

	if err := s.insert(ctx, cols); err != nil {
		return adapter.WriteResult{Err: adapter.NewError(adapter.KindTransport, "write_batch", err)}
	}
	return adapter.WriteResult{Confirmed: true}
}

func fillFirstColumn(ctx context.Context, s *session, firstCol string, isTime, isInt bool, values map[string]any) error {
	switch {
	case isTime:
		values[firstCol] = time.Now()
	case isInt:
		next, err := s.nextIncrement(ctx, firstCol)
		if err != nil {
			return err
		}
		values[firstCol] = next
	}
	return nil
}

func (s *session) insert(ctx context.Context, values map[string]any) error {
	builder := sq.Insert(s.table).PlaceholderFormat(s.d.placeholder)

	cols := make([]string, 0, len(values))
	vals := make([]any, 0, len(values))
	for col, v := range values {
		cols = append(cols, s.d.quote(col))
		vals = append(vals, v)
	}
	builder = builder.Columns(cols...).Values(vals...)

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *session) update(ctx context.Context, values map[string]any, rowID string) error {
	builder := sq.Update(s.table).PlaceholderFormat(s.d.placeholder)
	for col, v := range values {
		builder = builder.Set(s.d.quote(col), v)
	}

	id, err := strconv.ParseInt(rowID, 10, 64)
	if err != nil {
		builder = builder.Where(sq.Eq{"id": rowID})
	} else {
		builder = builder.Where(sq.Eq{"id": id})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}
