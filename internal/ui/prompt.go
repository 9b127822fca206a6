package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BioHazard786/linkdrop/internal/rendezvous"
	"github.com/chzyer/readline"
)

// ErrCancelled is returned when the user interrupts a prompt.
var ErrCancelled = errors.New("cancelled")

type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Prompter asks the user for input on the terminal.
type Prompter struct {
	rl  lineReader
	out io.Writer
}

func NewPrompter() (*Prompter, error) {
	rl, err := readline.New("")
	if err != nil {
		return nil, err
	}
	return &Prompter{rl: rl, out: rl.Stdout()}, nil
}

// Close releases the terminal.
func (p *Prompter) Close() error {
	if c, ok := p.rl.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// RoomCode reads until the user enters a 7-character room code or a share
// link carrying one.
func (p *Prompter) RoomCode() (string, error) {
	p.rl.SetPrompt(fmt.Sprintf("%s Enter room code: ", IconReceive))
	for {
		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		code, err := rendezvous.ExtractRoomID(line)
		if err != nil {
			fmt.Fprintln(p.out, WarningStyle.Render("A room code is 7 letters or digits, try again."))
			continue
		}
		return code, nil
	}
}

// Confirm asks a yes/no question. An empty answer means no.
func (p *Prompter) Confirm(question string) (bool, error) {
	p.rl.SetPrompt(question + " [y/N] ")
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.rl.Readline()
	switch {
	case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
		return "", ErrCancelled
	case err != nil:
		return "", err
	}
	return line, nil
}
