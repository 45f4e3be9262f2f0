package setup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter is where setup reads answers from and writes instructions to.
type Prompter interface {
	// Ask shows label (and def when set) and returns the trimmed answer, or def for an empty answer.
	Ask(label, def string) (string, error)
	// AskSecret reads an answer without echoing it.
	AskSecret(label string) (string, error)
	Println(a ...interface{})
}

type Console struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func NewConsole() *Console {
	return &Console{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
		fd:  int(os.Stdin.Fd()),
	}
}

func (c *Console) Ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", label)
	}

	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (c *Console) AskSecret(label string) (string, error) {
	if !term.IsTerminal(c.fd) {
		return c.Ask(label, "")
	}

	fmt.Fprintf(c.out, "%s: ", label)
	raw, err := term.ReadPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (c *Console) Println(a ...interface{}) {
	fmt.Fprintln(c.out, a...)
}

// yes reports whether answer is an affirmative "yes".
func yes(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}
