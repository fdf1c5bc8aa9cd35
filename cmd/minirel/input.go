package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
)

type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

// newLineReader gives an interactive prompt with history on a terminal and
// plain line scanning for piped scripts.
func newLineReader(in *os.File) (lineReader, error) {
	if !isatty.IsTerminal(in.Fd()) && !isatty.IsCygwinTerminal(in.Fd()) {
		return newScannerReader(in), nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cliName + "> ",
		HistoryFile:       filepath.Join(os.TempDir(), "."+cliName+"_history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         ".exit",
		HistorySearchFold: true,
		Stdin:             in,
	})
	if err != nil {
		return nil, err
	}
	return &promptReader{rl: rl}, nil
}

type promptReader struct {
	rl *readline.Instance
}

func (r *promptReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		// ^C clears a half typed line, on an empty line it quits
		if len(line) == 0 {
			return "", io.EOF
		}
		return "", nil
	}
	return line, err
}

func (r *promptReader) Close() error {
	return r.rl.Close()
}

type scannerReader struct {
	scanner *bufio.Scanner
}

func newScannerReader(in io.Reader) *scannerReader {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &scannerReader{scanner: scanner}
}

func (r *scannerReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scannerReader) Close() error {
	return nil
}
