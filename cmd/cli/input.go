package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// test seams for the terminal
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var errNoPassword = errors.New("password required (-p or interactive terminal)")

// passwordOrPrompt returns p, or reads a password from the terminal without echo
// when p is empty and stdin is interactive.
func passwordOrPrompt(p string, w io.Writer) (string, error) {
	if p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return "", errNoPassword
	}
	fmt.Fprint(w, "Password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	if len(pw) == 0 {
		return "", errNoPassword
	}
	return string(pw), nil
}
