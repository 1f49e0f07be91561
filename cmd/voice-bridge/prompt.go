package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sessamekesh/proximity-voice-bridge/internal/config"
)

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// readAnswer returns the trimmed console line. A closed console reads as an
// empty answer so defaults apply.
func (p *prompter) readAnswer() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) Address() (string, error) {
	fmt.Fprintf(p.out, "Enter the server address, or press enter to use the default address %s : ", config.DefaultAddress)
	answer, err := p.readAnswer()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return config.DefaultAddress, nil
	}
	return answer, nil
}

func (p *prompter) Port() (uint16, error) {
	for {
		fmt.Fprintf(p.out, "Enter the server port, or press enter to use the default port %d : ", config.DefaultPort)
		answer, err := p.readAnswer()
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return config.DefaultPort, nil
		}

		port, err := strconv.ParseUint(answer, 10, 16)
		if err == nil && port > 0 {
			return uint16(port), nil
		}
		fmt.Fprintf(p.out, "Invalid port %q\n", answer)
	}
}
