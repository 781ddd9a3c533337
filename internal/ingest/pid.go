// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"os"
	"strconv"
)

func currentPID() int { return os.Getpid() }

func pidString(pid int32) string { return strconv.Itoa(int(pid)) }
