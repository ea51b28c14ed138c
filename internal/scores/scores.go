// Package scores reads the result artifact the tournament server leaves
// behind when a round ends.
//
// The artifact is a plain text file. Its first line holds the identifier of
// the winning bot; any following lines are reserved and ignored.
package scores

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// FileName is the name of the result artifact inside the server's working directory.
const FileName = "scores.log"

// MaxLineLength bounds how much of the first line is read.
const MaxLineLength = 64 * 1024

var (
	// ErrArtifactUnreadable is returned when the artifact cannot be opened for reading.
	ErrArtifactUnreadable = errors.New("result artifact unreadable")

	// ErrArtifactEmpty is returned when the trimmed first line is empty.
	ErrArtifactEmpty = errors.New("result artifact empty")
)

// Path returns the artifact location for a server working directory.
func Path(workDir string) string {
	return filepath.Join(workDir, FileName)
}

// ReadWinner opens the artifact at path and returns the winner identifier
// found on its first line. The file is never modified.
func ReadWinner(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactUnreadable, err)
	}
	defer f.Close()

	return ParseWinner(f)
}

// ParseWinner reads the first line of r and returns it trimmed.
// Invalid UTF-8 sequences are replaced rather than rejected.
func ParseWinner(r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 4096)

	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(line)+len(chunk) > MaxLineLength {
			chunk = chunk[:MaxLineLength-len(line)]
		}
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull && len(line) < MaxLineLength {
			continue
		}
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return "", fmt.Errorf("%w: %v", ErrArtifactUnreadable, err)
		}
		break
	}

	winner := bytes.TrimSpace(line)
	if len(winner) == 0 {
		return "", ErrArtifactEmpty
	}
	if !utf8.Valid(winner) {
		winner = bytes.ToValidUTF8(winner, []byte(string(utf8.RuneError)))
	}
	return string(winner), nil
}
