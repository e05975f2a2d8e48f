package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dmitrijs2005/greenmission/internal/client/identity"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
//
// Example prompt format:
//
//	Prompt text
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	return readLine(reader)
}

// Confirm asks a yes/no question. Anything but "y" or "yes" is a no.
func Confirm(reader *bufio.Reader, question string, w io.Writer) (bool, error) {
	if _, err := fmt.Fprintf(w, "%s [y/N] ", question); err != nil {
		return false, err
	}
	answer, err := readLine(reader)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword prints a password prompt to w and reads a password from the
// terminal without echo. When stdin is not a terminal the password is read
// as a plain line from reader.
func GetPassword(reader *bufio.Reader, w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter password: "); err != nil {
		return nil, err
	}
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		line, err := readLine(reader)
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// linePrompt asks for NGO credentials on the terminal.
type linePrompt struct {
	in  *bufio.Reader
	out io.Writer
}

func (p linePrompt) Credentials(_ context.Context, register bool) (identity.Credentials, error) {
	var (
		c   identity.Credentials
		err error
	)
	if register {
		if c.Name, err = GetSimpleText(p.in, "Organisation name", p.out); err != nil {
			return c, promptError(err)
		}
	}
	if c.Email, err = GetSimpleText(p.in, "Email", p.out); err != nil {
		return c, promptError(err)
	}
	pw, err := GetPassword(p.in, p.out)
	if err != nil {
		return c, promptError(err)
	}
	c.Password = string(pw)
	return c, nil
}

// promptError treats closed input as the user backing out.
func promptError(err error) error {
	if errors.Is(err, io.EOF) {
		return identity.ErrProviderCancelled
	}
	return err
}
