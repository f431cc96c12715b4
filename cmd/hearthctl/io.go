package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// stdio is the terminal seam of every command.
type stdio struct {
	in       *bufio.Reader
	out      io.Writer
	errOut   io.Writer
	password func(prompt string) (string, error)
}

func newStdio() *stdio {
	s := &stdio{in: bufio.NewReader(os.Stdin), out: os.Stdout, errOut: os.Stderr}
	s.password = s.readPassword
	return s
}

// readPassword reads without echo from a terminal, or one line from piped
// stdin.
func (s *stdio) readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 -- file descriptors fit in int.
	if !term.IsTerminal(fd) {
		return s.line()
	}
	fmt.Fprint(s.errOut, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(s.errOut)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *stdio) line() (string, error) {
	l, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && l != "") {
		return "", err
	}
	return strings.TrimRight(l, "\r\n"), nil
}
