// Package prompt provides command-line passphrase prompting for operations
// (open, change-key) that need a secret from an interactive operator.
package prompt

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/mutagen-io/gopass"
)

// CommandLine reads a secret from the terminal, echoing input only if
// standard input is not a terminal (so piped/redirected input remains
// visible in logs of non-interactive invocations, matching how other
// command-line tools in this ecosystem treat redirected stdin).
func CommandLine(prompt string) (string, error) {
	getter := gopass.GetPasswd
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		getter = gopass.GetPasswdEchoed
	}

	fmt.Fprint(os.Stderr, prompt)

	result, err := getter()
	if err != nil {
		return "", errors.Wrap(err, "unable to read response")
	}

	return string(result), nil
}
