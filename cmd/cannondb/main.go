// Command cannondb is a small interactive shell over a database file:
//
//	cannondb <db-path> [config.yaml]
//
// Commands: set <key> <value>, get <key>, del <key>, keys, commit,
// checkpoint, quit. Keys and values are text; integers are stored as ints.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cannondb/cannondb"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: cannondb <db-path> [config.yaml]")
		os.Exit(2)
	}

	cfg := cannondb.DefaultConfig()
	if len(os.Args) > 2 {
		loaded, err := cannondb.LoadConfig(os.Args[2])
		if err != nil {
			slog.Error("load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	db, err := cannondb.Open(os.Args[1], cfg)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("close database", "err", err)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if quit := run(db, line); quit {
				return
			}
		}
		fmt.Print("> ")
	}
}

// parseValue stores integers as ints and everything else as text.
func parseValue(s string) cannondb.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return cannondb.Int(i)
	}
	return cannondb.Text(s)
}

func render(v cannondb.Value) string {
	switch v.Kind() {
	case cannondb.KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case cannondb.KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	default:
		return v.Text()
	}
}

func run(db *cannondb.DB, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "set":
		if len(args) < 2 {
			fmt.Println("usage: set <key> <value>")
			return false
		}
		err := db.Insert(parseValue(args[0]), parseValue(strings.Join(args[1:], " ")), true)
		report(err)
	case "get":
		if len(args) != 1 {
			fmt.Println("usage: get <key>")
			return false
		}
		v, err := db.Get(parseValue(args[0]))
		if err != nil {
			report(err)
			return false
		}
		fmt.Println(render(v))
	case "del":
		if len(args) != 1 {
			fmt.Println("usage: del <key>")
			return false
		}
		report(db.Remove(parseValue(args[0])))
	case "keys":
		err := db.Walk(func(k, _ cannondb.Value) error {
			fmt.Println(render(k))
			return nil
		})
		report(err)
	case "commit":
		report(db.Commit())
	case "checkpoint":
		report(db.Checkpoint())
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
	return false
}

func report(err error) {
	if err != nil {
		fmt.Println("error:", err)
	}
}
