// Command queuectl is the minimal admin CLI wiring internal/admin to
// stdin/stdout. Argument parsing and pretty-printing are explicitly out of
// scope (spec.md §1); this emits one JSON object per line instead of the
// tabulate-based table the original CLI (cli.py) builds with
// pretty_print_queue. Shape follows distributedq's cmd/server/main.go in
// spirit (thin wiring over a shared core, env-driven config) without the
// HTTP server, since this is a one-shot command, not a daemon.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/macq/tomtom-priority-queue/internal/admin"
	"github.com/macq/tomtom-priority-queue/internal/config"
	"github.com/macq/tomtom-priority-queue/internal/errs"
	"github.com/macq/tomtom-priority-queue/internal/queueitem"
	"github.com/macq/tomtom-priority-queue/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}

	surface, err := admin.Open(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: queuectl <add|list|list-next|update|purge> [args...]")
		return 1
	}

	var cmdErr error
	switch args[0] {
	case "add":
		cmdErr = cmdAdd(surface, args[1:])
	case "list":
		cmdErr = cmdList(surface, args[1:])
	case "list-next":
		cmdErr = cmdListNext(surface, args[1:])
	case "update":
		cmdErr = cmdUpdate(surface, args[1:])
	case "purge":
		cmdErr = surface.Purge()
	default:
		cmdErr = fmt.Errorf("unknown command %q", args[0])
	}

	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, cmdErr)
		return exitCodeFor(cmdErr)
	}
	return 0
}

func cmdAdd(surface *admin.Surface, args []string) error {
	fs := map[string]string{}
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", kv)
		}
		fs[k] = v
	}

	priority, err := strconv.ParseInt(fs["priority"], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid priority: %w", err)
	}

	payload, err := payloadBytes(fs["payload"])
	if err != nil {
		return err
	}

	item, err := surface.Add(fs["name"], queueitem.ReportType(fs["type"]), payload, priority)
	if err != nil {
		return err
	}
	return printJSON(item)
}

func cmdList(surface *admin.Surface, args []string) error {
	f := store.Filter{}
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "uid":
			f.UIDs = append(f.UIDs, v)
		case "name":
			f.NameSubstrings = append(f.NameSubstrings, v)
		case "status":
			f.Statuses = append(f.Statuses, queueitem.Status(v))
		case "priority":
			pred, err := parsePriorityPredicate(v)
			if err != nil {
				return err
			}
			f.PriorityPredicates = append(f.PriorityPredicates, pred)
		}
	}

	for _, item := range surface.List(f) {
		if err := printJSON(item); err != nil {
			return err
		}
	}
	return nil
}

func cmdListNext(surface *admin.Surface, args []string) error {
	n := 1
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid n: %w", err)
		}
		n = parsed
	}
	for _, item := range surface.ListNext(n) {
		if err := printJSON(item); err != nil {
			return err
		}
	}
	return nil
}

func cmdUpdate(surface *admin.Surface, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("update requires a uid")
	}
	uid := args[0]

	var name *string
	var priority *int64
	var cancel *bool
	var payload []byte

	for _, kv := range args[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "name":
			name = &v
		case "priority":
			p, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid priority: %w", err)
			}
			priority = &p
		case "cancel":
			c, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid cancel flag: %w", err)
			}
			cancel = &c
		case "payload":
			p, err := payloadBytes(v)
			if err != nil {
				return err
			}
			payload = p
		}
	}

	item, err := surface.Update(uid, name, priority, cancel, payload)
	if err != nil {
		return err
	}
	return printJSON(item)
}

func payloadBytes(spec string) ([]byte, error) {
	if spec == "" {
		return nil, fmt.Errorf("payload is required")
	}
	if path, ok := strings.CutPrefix(spec, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(spec), nil
}

func parsePriorityPredicate(v string) (store.PriorityPredicate, error) {
	for _, op := range []string{"<=", ">=", "<", ">"} {
		if rest, ok := strings.CutPrefix(v, op); ok {
			n, err := strconv.ParseInt(rest, 10, 64)
			return store.PriorityPredicate{Op: op, Value: n}, err
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return store.PriorityPredicate{Value: n}, err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(v)
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrMisconfigured):
		return 2
	case errors.Is(err, errs.ErrIllegalTransition):
		return 4
	case errors.Is(err, errs.ErrEmptyUpdate):
		return 4
	default:
		return 1
	}
}
