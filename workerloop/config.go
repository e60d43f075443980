// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package workerloop

import (
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Config is the worker-side view of the command line the parent builds
// for each child, per the wire contract's required/optional arguments.
type Config struct {
	IsChildProcess bool
	ProcessID      int

	// ServiceInitializerPath names the user-supplied module that
	// populates the ServiceProvider on first use. Required.
	ServiceInitializerPath string
	// ServiceInitializerClassName optionally selects a named export
	// from the module at ServiceInitializerPath, rather than its
	// default export.
	ServiceInitializerClassName string

	// Extra holds any additional --key=value arguments the caller
	// passed through, for services that need their own configuration.
	Extra map[string]string
}

// ParseArgs parses the argv built by worker.Spawn (buildArgv) back into
// a Config. Values that were quoted by the parent to tolerate embedded
// whitespace are unquoted here.
func ParseArgs(args []string) (Config, error) {
	cfg := Config{Extra: make(map[string]string)}
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		kv := strings.TrimPrefix(arg, "--")
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			cfg.Extra[kv] = ""
			continue
		}
		key, val := kv[:idx], unquote(kv[idx+1:])
		switch key {
		case "isChildProcess":
			cfg.IsChildProcess = val == "true"
		case "processId":
			id, err := strconv.Atoi(val)
			if err != nil {
				return Config{}, errors.E(errors.Invalid, "workerloop: invalid --processId", err)
			}
			cfg.ProcessID = id
		case "serviceInitializerPath":
			cfg.ServiceInitializerPath = val
		case "serviceInitializerClassName":
			cfg.ServiceInitializerClassName = val
		default:
			cfg.Extra[key] = val
		}
	}
	if cfg.ServiceInitializerPath == "" {
		return Config{}, errors.E(errors.Invalid, "workerloop: missing required --serviceInitializerPath")
	}
	return cfg, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}
