package runner

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/AlexandreMouraa/infra-bkp-cleaner/internal/sizefmt"
)

// Confirmer asks the operator before anything is deleted
type Confirmer interface {
	Confirm(count int, totalBytes int64) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(count int, totalBytes int64) bool

func (f ConfirmFunc) Confirm(count int, totalBytes int64) bool {
	return f(count, totalBytes)
}

// TerminalConfirmer prompts on out and reads a single answer line from in
type TerminalConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm accepts y, yes, s or sim in any case, terminated by a newline.
// Anything else declines, including an answer cut short by EOF.
func (c *TerminalConfirmer) Confirm(count int, totalBytes int64) bool {
	fmt.Fprintf(c.out, "%d arquivo(s) serão removidos (%s). Confirmar? [s/N]: ",
		count, sizefmt.Format(totalBytes))

	line, err := c.in.ReadString('\n')
	if err != nil {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "sim":
		return true
	default:
		return false
	}
}
