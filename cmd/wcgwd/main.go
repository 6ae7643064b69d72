// Command wcgwd is the coding-agent execution backend: a long-lived process
// that reads one JSON operation envelope per line on stdin and writes one
// JSON response per line to stdout, grounded in the teacher's wtd relay
// daemon (cmd/wtd/main.go) generalized from an HTTP listener to a stdio
// framing loop.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"wcgw/internal/audit"
	"wcgw/internal/config"
	"wcgw/internal/logger"
	"wcgw/internal/ops"
)

func main() {
	var configPath string
	var auditDBFlag string

	root := &cobra.Command{
		Use:   "wcgwd",
		Short: "coding-agent execution backend: PTY shell engine + file-edit validation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Init(cfg.LogLevel, ""); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			dbPath := auditDBFlag
			if dbPath == "" {
				dbPath = cfg.AuditDB
			}
			var store *audit.Store
			if dbPath != "" {
				store, err = audit.Open(dbPath)
				if err != nil {
					return fmt.Errorf("open audit db: %w", err)
				}
				defer store.Close()
			}

			d := ops.New(logger.Log, cfg, store)
			defer d.Shutdown()

			return serve(d, os.Stdin, os.Stdout)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to an EngineConfig YAML file")
	root.Flags().StringVar(&auditDBFlag, "audit-db", "", "path to the operation history SQLite database (overrides config)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// envelope is just enough of a request to route it; the full payload is
// re-unmarshaled into the operation-specific request struct once the type
// is known.
type envelope struct {
	Type string `json:"type"`
}

// serve runs the newline-delimited JSON request/response loop until in is
// exhausted or returns an error.
func serve(d *ops.Dispatcher, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			enc.Encode(errorEnvelope(ops.New(ops.InvalidBlockFormat, ops.ComponentSession, "invalid request envelope: %v", err)))
			continue
		}

		resp, opErr := dispatch(d, env.Type, line)
		if opErr != nil {
			enc.Encode(errorEnvelope(opErr))
			continue
		}
		enc.Encode(resp)
	}
	return scanner.Err()
}

func errorEnvelope(opErr *ops.Error) map[string]any {
	return map[string]any{"error": opErr}
}

// dispatch decodes raw into the request type named by opType and invokes the
// matching Dispatcher method.
func dispatch(d *ops.Dispatcher, opType string, raw []byte) (any, *ops.Error) {
	switch opType {
	case "initialize":
		var req ops.InitializeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, decodeErr(opType, err)
		}
		return d.Initialize(req)

	case "bash_command":
		var req ops.BashCommandRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, decodeErr(opType, err)
		}
		return d.BashCommand(req)

	case "read_files":
		var req ops.ReadFilesRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, decodeErr(opType, err)
		}
		return d.ReadFiles(req)

	case "file_write_or_edit":
		var req ops.FileWriteOrEditRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, decodeErr(opType, err)
		}
		return d.FileWriteOrEdit(req)

	case "context_save":
		var req ops.ContextSaveRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, decodeErr(opType, err)
		}
		return d.ContextSave(req)

	case "read_image":
		var req ops.ReadImageRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, decodeErr(opType, err)
		}
		return d.ReadImage(req)

	default:
		return nil, ops.New(ops.InvalidBlockFormat, ops.ComponentSession, "unknown operation type %q", opType)
	}
}

func decodeErr(opType string, err error) *ops.Error {
	return ops.New(ops.InvalidBlockFormat, ops.ComponentSession, "decode %s request: %v", opType, err)
}
