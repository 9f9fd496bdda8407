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

// prompter asks for secrets without echo on a terminal and reads plain lines
// otherwise, so commands can be scripted through a pipe.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompter(stdin *os.File, out io.Writer) *prompter {
	fd := int(stdin.Fd())
	return &prompter{
		in:  bufio.NewReader(stdin),
		out: out,
		fd:  fd,
		tty: term.IsTerminal(fd),
	}
}

func (p *prompter) secret(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if p.tty {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		return string(b), err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
