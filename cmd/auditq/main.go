// Command auditq queries the agent's audit trail: decisions, actions,
// learnings and rollbacks appended to daily JSONL files.
//
// Examples:
//
//	auditq -dir data/audit -type action -limit 20
//	auditq -dir data/audit -type decision -since 2026-08-25T00:00:00Z
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/payops/sentinel/internal/audit"
)

func main() {
	os.Exit(run())
}

func run() int {
	dir := flag.String("dir", "data/audit", "audit log directory")
	eventType := flag.String("type", "", "filter by event type: decision, action, learning, rollback")
	since := flag.String("since", "", "only entries at or after this RFC3339 time")
	until := flag.String("until", "", "only entries at or before this RFC3339 time")
	limit := flag.Int("limit", 100, "maximum entries to print")
	pretty := flag.Bool("pretty", false, "indent JSON output")
	flag.Parse()

	startMS, err := parseTime(*since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -since: %v\n", err)
		return 1
	}
	endMS, err := parseTime(*until)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -until: %v\n", err)
		return 1
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	trail, err := audit.NewLog(*dir, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	entries, err := trail.QueryEvents(*eventType, startMS, endMS, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
			return 1
		}
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", len(entries))
	return 0
}

func parseTime(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
