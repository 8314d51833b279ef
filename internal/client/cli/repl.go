package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Fprintln

// command is one REPL verb. args are the words after the verb.
type command struct {
	fn       func(ctx context.Context, args []string) error
	usage    string
	needAuth bool
}

// runREPL reads a line, parses the first token as the command and
// dispatches it. Commands that need a login are refused until there is one.
// The loop exits on EOF or when the user types "exit" or "quit".
//
// Errors returned by commands are printed and the loop continues.
func runREPL(ctx context.Context, cmds map[string]command, loggedIn func() bool, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "diary %s> ", statusFn())

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "help":
			printlnFn(w, help(cmds, loggedIn()))
			continue
		case "exit", "quit":
			printlnFn(w, "Bye!")
			return
		}

		cmd, ok := cmds[name]
		switch {
		case !ok:
			printlnFn(w, "Unknown command:", name)
		case cmd.needAuth && !loggedIn():
			printlnFn(w, "Please login first")
		default:
			if err := cmd.fn(ctx, args); err != nil {
				printlnFn(w, "Error:", err)
			}
		}
	}
}

func help(cmds map[string]command, loggedIn bool) string {
	names := make([]string, 0, len(cmds))
	for name, c := range cmds {
		if loggedIn || !c.needAuth {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-10s %s\n", name, cmds[name].usage)
	}
	b.WriteString("  exit       leave the program")
	return b.String()
}
