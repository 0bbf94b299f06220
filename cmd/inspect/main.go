package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"huddle/pkg/logger"
	"huddle/pkg/store"
)

// Offline store inspector. Opens a pebble directory directly and dumps
// keys (and optionally values) for a prefix. Run only against a stopped
// server; pebble takes an exclusive lock.
func main() {
	var (
		dbPath = flag.String("db", "", "pebble DB path")
		prefix = flag.String("prefix", "", "key prefix to scan (empty scans everything)")
		values = flag.Bool("values", false, "print values as well as keys")
	)
	flag.Parse()
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	logger.Init()
	if err := store.Open(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	keys, err := store.ListKeys(*prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if !*values {
			fmt.Println(k)
			continue
		}
		v, err := store.GetKey(k)
		if err != nil {
			fmt.Printf("%s\t<unreadable: %v>\n", k, err)
			continue
		}
		// re-indent JSON values for readability; raw bytes pass through
		var buf json.RawMessage
		if json.Unmarshal(v, &buf) == nil {
			fmt.Printf("%s\t%s\n", k, string(buf))
		} else {
			fmt.Printf("%s\t%q\n", k, v)
		}
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}
