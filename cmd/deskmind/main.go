// File: cmd/deskmind/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/deskmind/cmd"
	"github.com/xkilldash9x/deskmind/internal/observability"
)

const panicLogFile = "panic.log"

const banner = `
 deskmind %s
 Type a command (e.g. decide "open notepad"), or "exit" to leave.

`

// Function variables so tests can observe exits and panic logging.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	newRootCmd  = cmd.NewSessionRootCommand
)

func main() {
	// The sentinel: record any panic before the process dies.
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With arguments, run once and exit.
	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0)
			} else {
				osExit(1)
			}
		}
		return
	}

	if err := runInteractive(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// runInteractive reads commands line by line until EOF, exit or quit.
// Application handles are shared by every command of the session.
func runInteractive(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	fmt.Fprintf(out, banner, cmd.Version)
	session := cmd.NewSession()
	defer session.Close()
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "deskmind > ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, session, line, out, errOut)
		if ctx.Err() != nil {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Exiting deskmind.")
	return nil
}

// executeInteractiveCommand runs one line against a fresh command tree so
// flags from one command never leak into the next. Errors and panics are
// reported without ending the session.
func executeInteractiveCommand(ctx context.Context, session *cmd.Session, line string, out, errOut io.Writer) {
	args, err := splitArgs(line)
	if err != nil {
		fmt.Fprintln(errOut, "Error:", err)
		return
	}

	rootCmd := newRootCmd(session)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(errOut, "Error: Command panicked: %v\n", r)
		}
	}()
	// cobra already printed the error.
	_ = rootCmd.ExecuteContext(ctx)
}

// splitArgs splits a command line on whitespace, keeping double- or
// single-quoted runs together so request text can contain spaces.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inArg   bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}

// handlePanic writes the panic and stack to panicLogFile and exits non-zero.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()

		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(1)
			return
		}

		fmt.Fprintf(os.Stderr, "\ndeskmind crashed. Details logged to %s\n", panicLogFile)
		osExit(2)
	}
}
