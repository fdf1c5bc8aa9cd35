package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardKnop/minirel/internal/minirel"
)

type metaCommand int

const (
	Unknown metaCommand = iota + 1
	Help
	Exit
	ListTables
)

func isMetaCommand(inputBuffer string) bool {
	return len(inputBuffer) > 0 && inputBuffer[:1] == "."
}

func doMetaCommand(inputBuffer string) metaCommand {
	switch strings.ToLower(inputBuffer) {
	case "help":
		return Help
	case "exit", "quit":
		return Exit
	case "tables":
		return ListTables
	default:
		return Unknown
	}
}

// shell reads one line at a time and hands it to the database. Statement
// failures are printed and never end the loop.
type shell struct {
	db     *minirel.Database
	in     lineReader
	out    io.Writer
	logger *zap.Logger
}

func (s *shell) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		line, err := s.in.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading input: %w", err)
		}

		inputBuffer := strings.TrimSpace(line)
		if inputBuffer == "" {
			continue
		}

		if !isMetaCommand(inputBuffer) {
			s.db.Run(ctx, inputBuffer, s.out)
			continue
		}

		switch doMetaCommand(inputBuffer[1:]) {
		case Help:
			fmt.Fprintln(s.out, ".help    - Show available commands")
			fmt.Fprintln(s.out, ".exit    - Closes program")
			fmt.Fprintln(s.out, ".tables  - List all tables in the current database")
		case Exit:
			return nil
		case ListTables:
			tables, err := s.db.Tables(ctx)
			if err != nil {
				s.logger.Sugar().With("error", err).Error("failed to list tables")
				fmt.Fprintf(s.out, "Error listing tables: %v\n", err)
				continue
			}
			for _, table := range tables {
				fmt.Fprintln(s.out, table)
			}
		case Unknown:
			fmt.Fprintf(s.out, "Unrecognized meta command: %s\n", inputBuffer)
		}
	}
	return ctx.Err()
}
