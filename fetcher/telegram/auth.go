package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// TerminalUserAuthenticator implements auth.UserAuthenticator prompting the terminal for input.
type TerminalUserAuthenticator struct {
	PhoneNumber string // optional, will be prompted if empty

	in  *bufio.Reader
	out io.Writer
	// readPassword reads a secret without echo
	readPassword func() ([]byte, error)
}

// NewTerminalUserAuthenticator prompts on stdin/stdout
func NewTerminalUserAuthenticator(phoneNumber string) TerminalUserAuthenticator {
	return TerminalUserAuthenticator{
		PhoneNumber: phoneNumber,
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		readPassword: func() ([]byte, error) {
			return term.ReadPassword(int(syscall.Stdin))
		},
	}
}

func (TerminalUserAuthenticator) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("signing up not implemented in Terminal")
}

func (TerminalUserAuthenticator) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (a TerminalUserAuthenticator) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "A verification code has been sent to your phone via Telegram.")
	return a.prompt("Enter code: ")
}

func (a TerminalUserAuthenticator) Phone(_ context.Context) (string, error) {
	if a.PhoneNumber != "" {
		return a.PhoneNumber, nil
	}
	return a.prompt("Enter phone in international format (e.g. +1234567890): ")
}

func (a TerminalUserAuthenticator) Password(_ context.Context) (string, error) {
	fmt.Fprint(a.out, "Enter 2FA password: ")
	bytePwd, err := a.readPassword()
	if err != nil {
		return "", err
	}
	fmt.Fprintln(a.out)
	return strings.TrimSpace(string(bytePwd)), nil
}

func (a TerminalUserAuthenticator) prompt(question string) (string, error) {
	fmt.Fprint(a.out, question)
	answer, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && answer != "") {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
