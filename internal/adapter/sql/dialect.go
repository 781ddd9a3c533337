// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// dialect bundles everything that varies by database kind: how to build a
// DSN/connection string, which sql.DB driver name opens it, how to quote an
// identifier and pick a placeholder style, and how to express "top 1 row"
// (grounded on original_source/driver/sql_driver_process.py's
// _montar_conn_str, which branches identically on db_type).
type dialect struct {
	driverName  string
	quote       func(ident string) string
	placeholder sq.PlaceholderFormat
	topOne      bool // true for sqlserver: SELECT TOP 1 instead of ... LIMIT 1
}

func dialectFor(kind string) (dialect, error) {
	switch kind {
	case "sqlserver":
		return dialect{driverName: "odbc", quote: bracketQuote, placeholder: sq.Question, topOne: true}, nil
	case "mysql":
		return dialect{driverName: "mysql", quote: backtickQuote, placeholder: sq.Question}, nil
	case "postgresql":
		return dialect{driverName: "odbc", quote: doubleQuote, placeholder: sq.Dollar}, nil
	case "oracle":
		return dialect{driverName: "odbc", quote: doubleQuote, placeholder: sq.Colon}, nil
	case "sqlite":
		return dialect{driverName: "sqlite3", quote: doubleQuote, placeholder: sq.Question}, nil
	case "firebird":
		return dialect{driverName: "odbc", quote: doubleQuote, placeholder: sq.Question}, nil
	case "db2":
		return dialect{driverName: "odbc", quote: doubleQuote, placeholder: sq.Question}, nil
	case "sybase":
		return dialect{driverName: "odbc", quote: bracketQuote, placeholder: sq.Question}, nil
	case "access":
		return dialect{driverName: "odbc", quote: bracketQuote, placeholder: sq.Question}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported db_type %q", kind)
	}
}

func bracketQuote(ident string) string { return "[" + ident + "]" }
func doubleQuote(ident string) string  { return `"` + ident + `"` }
func backtickQuote(ident string) string { return "`" + ident + "`" }

// dsn builds the connection string/DSN for the given options, mirroring
// _montar_conn_str's per-kind field set.
func dsn(kind string, opts schema.DeviceOptions) (string, error) {
	port := opts.Port
	switch kind {
	case "sqlserver":
		if port == 0 {
			port = 1433
		}
		return fmt.Sprintf(
			"DRIVER={ODBC Driver 17 for SQL Server};SERVER=%s,%d;DATABASE=%s;UID=%s;PWD=%s;TrustServerCertificate=yes;",
			opts.Host, port, opts.Database, opts.DBUser, opts.DBPassword,
		), nil

	case "mysql":
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", opts.DBUser, opts.DBPassword, opts.Host, port, opts.Database), nil

	case "postgresql":
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf(
			"DRIVER={PostgreSQL ODBC Driver(UNICODE)};SERVER=%s;PORT=%d;DATABASE=%s;UID=%s;PWD=%s;",
			opts.Host, port, opts.Database, opts.DBUser, opts.DBPassword,
		), nil

	case "oracle":
		return fmt.Sprintf(
			"DRIVER={Oracle in OraClient11g_home1};DBQ=%s:%d/%s;UID=%s;PWD=%s;",
			opts.Host, port, opts.Database, opts.DBUser, opts.DBPassword,
		), nil

	case "sqlite":
		return opts.Database, nil

	case "firebird":
		return fmt.Sprintf(
			"DRIVER={Firebird/InterBase(r) driver};Dbname=%s:%s;UID=%s;PWD=%s;",
			opts.Host, opts.Database, opts.DBUser, opts.DBPassword,
		), nil

	case "db2":
		return fmt.Sprintf(
			"DRIVER={IBM DB2 ODBC DRIVER};DATABASE=%s;HOSTNAME=%s;PORT=%d;PROTOCOL=TCPIP;UID=%s;PWD=%s;",
			opts.Database, opts.Host, port, opts.DBUser, opts.DBPassword,
		), nil

	case "sybase":
		return fmt.Sprintf(
			"DRIVER={Sybase ASE ODBC Driver};SERVER=%s;PORT=%d;DB=%s;UID=%s;PWD=%s;",
			opts.Host, port, opts.Database, opts.DBUser, opts.DBPassword,
		), nil

	case "access":
		return fmt.Sprintf("DRIVER={Microsoft Access Driver (*.mdb, *.accdb)};DBQ=%s;", opts.Database), nil

	default:
		return "", fmt.Errorf("unsupported db_type %q", kind)
	}
}
