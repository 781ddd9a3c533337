// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/EngRafael35/Inlogic-ia/internal/schema"
)

// ringHook appends every fired entry to the owning Bus's ring buffer.
type ringHook struct{ bus *Bus }

func (ringHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h ringHook) Fire(e *logrus.Entry) error {
	h.bus.append(toRecord(e))
	return nil
}

// fileHook writes each entry to the run's log file in the pipe-delimited
// format of the Python original: timestamp|level|source|message[|details].
type fileHook struct{ file *os.File }

func (fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h fileHook) Fire(e *logrus.Entry) error {
	rec := toRecord(e)
	line := fmt.Sprintf("%s|%s|%s|%s",
		rec.Timestamp.Format("2006-01-02 15:04:05"),
		strings.ToUpper(string(rec.Level)),
		rec.Source,
		rec.Message,
	)
	if len(rec.Details) > 0 {
		if b, err := json.Marshal(rec.Details); err == nil {
			line += "|" + string(b)
		}
	}
	_, err := fmt.Fprintln(h.file, line)
	return err
}

func toRecord(e *logrus.Entry) schema.LogRecord {
	source, _ := e.Data["source"].(string)
	details := map[string]any{}
	for k, v := range e.Data {
		if k == "source" {
			continue
		}
		details[k] = v
	}

	return schema.LogRecord{
		Timestamp: e.Time,
		Level:     levelOf(e.Level),
		Source:    source,
		Message:   e.Message,
		Details:   details,
	}
}

func levelOf(l logrus.Level) schema.LogLevel {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return schema.LevelDebug
	case logrus.WarnLevel:
		return schema.LevelWarn
	case logrus.ErrorLevel:
		return schema.LevelError
	case logrus.FatalLevel, logrus.PanicLevel:
		return schema.LevelFatal
	default:
		return schema.LevelInfo
	}
}
