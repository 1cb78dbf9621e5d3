package iojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// FileReader decodes a T from the --file flag, or from stdin when stdin is
// piped.
type FileReader[T any] struct {
	path  string
	stdin *os.File
}

func (fr *FileReader[T]) Flag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "path to a JSON file (- or omitted reads piped stdin)",
		Destination: &fr.path,
	}
}

// Available reports whether Read has a source: a file path or piped stdin.
func (fr *FileReader[T]) Available() bool {
	if fr.path != "" && fr.path != "-" {
		return true
	}
	return !term.IsTerminal(int(fr.in().Fd()))
}

func (fr *FileReader[T]) Read() (T, error) {
	var input T

	var r io.Reader
	if fr.path != "" && fr.path != "-" {
		f, err := os.Open(fr.path)
		if err != nil {
			return input, fmt.Errorf("open file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	} else {
		if term.IsTerminal(int(fr.in().Fd())) {
			return input, fmt.Errorf("no input provided (stdin is a terminal); use -f or pipe JSON")
		}
		r = fr.in()
	}

	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return input, fmt.Errorf("decode JSON: %w", err)
	}
	return input, nil
}

func (fr *FileReader[T]) in() *os.File {
	if fr.stdin != nil {
		return fr.stdin
	}
	return os.Stdin
}
