// Command authctl is operator tooling for the password hashes stored by the
// auth server.
//
//	authctl hash [-cost 12]   read a password, print its bcrypt hash
//	authctl verify <hash>     read a password, report whether it matches
//	authctl is-hash <value>   report whether value is already a bcrypt hash
//
// Passwords are read from the terminal without echo, or from the first line
// of stdin when it is not a terminal (e.g. in scripts).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/sakif/entity-auth/internal/auth"
	"github.com/sakif/entity-auth/internal/entity"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

const usage = `usage:
  authctl hash [-cost N]
  authctl verify <hash>
  authctl is-hash <value>`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run returns the process exit code: 0 on success or a positive answer, 1 on
// a negative answer (no match, not a hash), 2 on usage or runtime errors.
func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	var err error
	code := 0
	switch args[0] {
	case "hash":
		err = runHash(args[1:], stdin, stdout, stderr)
	case "verify":
		code, err = runVerify(args[1:], stdin, stdout, stderr)
	case "is-hash":
		code, err = runIsHash(args[1:], stdout)
	default:
		err = fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	if err != nil {
		fmt.Fprintln(stderr, "authctl:", err)
		return 2
	}
	return code
}

func runHash(args []string, stdin *os.File, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cost := fs.Int("cost", 12, "bcrypt work factor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	passwords, err := auth.NewPasswords(auth.PasswordConfig{Cost: *cost, Strict: true})
	if err != nil {
		return err
	}

	pw, err := promptPassword(stdin, stderr)
	if err != nil {
		return err
	}
	if pw == "" {
		return errors.New("empty password")
	}

	hash, err := passwords.GenerateHash(context.Background(), pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

func runVerify(args []string, stdin *os.File, stdout, stderr io.Writer) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("verify takes exactly one argument: the hash")
	}
	passwords, err := auth.NewPasswords(auth.PasswordConfig{})
	if err != nil {
		return 0, err
	}

	pw, err := promptPassword(stdin, stderr)
	if err != nil {
		return 0, err
	}

	ok, err := passwords.Verify(entity.Fields{passwords.Field(): args[0]}, pw)
	if err != nil {
		return 0, err
	}
	if !ok {
		fmt.Fprintln(stdout, "no match")
		return 1, nil
	}
	fmt.Fprintln(stdout, "match")
	return 0, nil
}

func runIsHash(args []string, stdout io.Writer) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("is-hash takes exactly one argument")
	}
	if auth.IsHash(args[0]) {
		fmt.Fprintln(stdout, "true")
		return 0, nil
	}
	fmt.Fprintln(stdout, "false")
	return 1, nil
}

// promptPassword reads without echo from a terminal, otherwise one line.
func promptPassword(stdin *os.File, prompt io.Writer) (string, error) {
	fd := int(stdin.Fd())
	if isTerminal(fd) {
		fmt.Fprint(prompt, "Password: ")
		pw, err := readPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
