// Package prompt reads answers to interactive questions from a line-oriented input.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrCancelled is returned when the input ends before a question is answered
var ErrCancelled = errors.New("input closed, cancelled by user")

type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the trimmed answer, or def when the answer is empty
func (p *Prompter) Ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s (default: %s): ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}

	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Confirm asks a y/n question. Anything other than y or yes is a no.
func (p *Prompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s (y/n): ", question)

	answer, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// SelectTarget asks for the destination owner until a valid choice is made.
// It returns an empty string for the personal account, or the organization name.
func (p *Prompter) SelectTarget() (string, error) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Select import target")
	fmt.Fprintln(p.out, "  1. Personal account")
	fmt.Fprintln(p.out, "  2. Organization")

	for {
		fmt.Fprint(p.out, "Select option (1 or 2): ")
		choice, err := p.readLine()
		if err != nil {
			return "", err
		}

		switch choice {
		case "1":
			return "", nil
		case "2":
			org, err := p.Ask("Organization name", "")
			if err != nil {
				return "", err
			}
			if org != "" {
				return org, nil
			}
			fmt.Fprintln(p.out, "Organization name cannot be empty")
		default:
			fmt.Fprintln(p.out, "Invalid option, select 1 or 2")
		}
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		// A final line without newline still counts
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
