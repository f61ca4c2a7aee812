package logrecord

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// EachLine calls fn for every line of r with the line terminator removed.
// Lines of any length are delivered whole; a final line without a newline is
// included.
func EachLine(r io.Reader, fn func(line string)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			fn(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
