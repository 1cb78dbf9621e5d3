// Package iojson holds helpers for reading and writing JSON on a command
// line: indented documents for people, one object per line for pipes.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
)

// Write encodes v as indented JSON followed by a newline.
func Write(w io.Writer, v any) error {
	bits, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// WriteLine encodes v as a single line of JSON.
func WriteLine(w io.Writer, v any) error {
	bits, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(bits))
	return err
}
