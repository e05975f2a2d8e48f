package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isSignedIn() bool
	SignIn(ctx context.Context) error
	SignInNGO(ctx context.Context) error
	RegisterNGO(ctx context.Context) error
	SignOut(ctx context.Context) error
	Retry(ctx context.Context) error
	Status(ctx context.Context) error
	Refresh(ctx context.Context) error
	ClearError(ctx context.Context) error
	Open(ctx context.Context, path string) error
	WalletConnect(ctx context.Context, addr string) error
	WalletDisconnect(ctx context.Context) error
	Avatar(ctx context.Context, file string) error
}

const (
	helpSignedOut = "Available commands: signin, signin-ngo, register-ngo, status, open <path>, clear, exit"
	helpSignedIn  = "Available commands: status, refresh, open <path>, wallet connect <address>, wallet disconnect, avatar <file>, retry, clear, signout, exit"
)

// runREPL reads commands line by line from reader until EOF or "exit".
// The prompt shows what statusFn returns.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gm %s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if quit := dispatch(ctx, a, parts); quit {
			return
		}
	}
}

// dispatch runs one command. It reports whether the user asked to quit.
// Command errors are printed, never returned, so the loop keeps going.
func dispatch(ctx context.Context, a execIface, parts []string) bool {
	cmd, args := parts[0], parts[1:]

	var err error
	switch cmd {
	case "help":
		if a.isSignedIn() {
			printlnFn(helpSignedIn)
		} else {
			printlnFn(helpSignedOut)
		}

	case "signin", "login":
		err = a.SignIn(ctx)

	case "signin-ngo":
		err = a.SignInNGO(ctx)

	case "register-ngo":
		err = a.RegisterNGO(ctx)

	case "signout", "logout":
		err = a.SignOut(ctx)

	case "retry":
		err = a.Retry(ctx)

	case "status", "s":
		err = a.Status(ctx)

	case "refresh":
		err = a.Refresh(ctx)

	case "clear":
		err = a.ClearError(ctx)

	case "open", "cd":
		if len(args) == 0 {
			printlnFn("Usage: open <path>")
			return false
		}
		err = a.Open(ctx, args[0])

	case "wallet":
		switch {
		case len(args) == 2 && args[0] == "connect":
			err = a.WalletConnect(ctx, args[1])
		case len(args) == 1 && args[0] == "disconnect":
			err = a.WalletDisconnect(ctx)
		default:
			printlnFn("Usage: wallet connect <address> | wallet disconnect")
			return false
		}

	case "avatar":
		if len(args) == 0 {
			printlnFn("Usage: avatar <file>")
			return false
		}
		err = a.Avatar(ctx, args[0])

	case "exit", "quit":
		printlnFn("Bye!")
		return true

	default:
		printlnFn("Unknown command:", cmd)
	}

	if err != nil {
		printlnFn("Error:", err)
	}
	return false
}
