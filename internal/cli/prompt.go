package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers to interactive questions, one line each.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// line asks label and returns the trimmed answer, or def when it is empty.
func (p *prompter) line(label, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	input, _ := p.in.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// choice re-asks until the answer is one of options.
func (p *prompter) choice(label, def string, options ...string) string {
	for {
		answer := strings.ToLower(p.line(fmt.Sprintf("%s (%s)", label, strings.Join(options, ", ")), def))
		for _, o := range options {
			if answer == o {
				return answer
			}
		}
		fmt.Fprintln(p.out, "Invalid choice, please try again.")
		if _, err := p.in.Peek(1); err != nil {
			return def
		}
	}
}

// number returns def when the answer is empty or not a positive integer.
func (p *prompter) number(label string, def int) int {
	answer := p.line(label, strconv.Itoa(def))
	if v, err := strconv.Atoi(answer); err == nil && v > 0 {
		return v
	}
	return def
}

// confirm asks a yes/no question; anything but y/yes is no.
func (p *prompter) confirm(question string) bool {
	answer := strings.ToLower(p.line(question+" [y/N]", ""))
	return answer == "y" || answer == "yes"
}

// promptPassword reads a password from the terminal without echo. When
// stdin is not a terminal it reads one line instead.
func promptPassword(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
