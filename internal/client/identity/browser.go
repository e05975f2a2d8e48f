package identity

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// BrowserOpener prints the authorization URL and tries to launch the
// system browser on it.
type BrowserOpener struct {
	Out io.Writer
	// Launch overrides the platform command, mostly for tests.
	Launch func(url string) error
}

func (b BrowserOpener) Open(authURL string) error {
	fmt.Fprintf(b.Out, "Opening your browser to sign in. If nothing happens, visit:\n  %s\n", authURL)
	launch := b.Launch
	if launch == nil {
		launch = launchBrowser
	}
	return launch(authURL)
}

func launchBrowser(u string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	return cmd.Start()
}

// LineCallbackReader asks the user to paste the URL the browser landed on.
// An empty line cancels the sign-in.
type LineCallbackReader struct {
	In  *bufio.Reader
	Out io.Writer
}

func (l LineCallbackReader) ReadCallback(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(l.Out, "Paste the address your browser was redirected to (empty to cancel): ")
	line, err := l.In.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("%w: %v", ErrProviderCancelled, err)
	}
	return line, nil
}
