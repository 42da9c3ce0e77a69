package logstream

import (
	"bufio"
	"io"
	"log"
	"strings"

	"golang.org/x/text/encoding"
)

// a single log line can be far longer than bufio's 64k default
const maxLineBytes = 1024 * 1024

/**
read line-by-line from src until EOF and push each result as a string pointer to the output channel.
on completion, a nil is pushed to the output channel
on error, a single error is pushed to the error channel, which is buffered so the reader never leaks
closing `stop` abandons any pending send; the caller is then responsible for closing src.
*/
func AsyncLineReader(src io.Reader, decoder *encoding.Decoder, bufferSize int, stop <-chan struct{}) (chan *string, chan error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(bufio.ScanLines)

	outputChan := make(chan *string, bufferSize)
	errorChan := make(chan error, 1)

	send := func(line *string) bool {
		select {
		case outputChan <- line:
			return true
		case <-stop:
			return false
		}
	}

	go func() {
		for scanner.Scan() {
			retrievedBytes := scanner.Bytes()
			var line string
			if decoder == nil {
				line = string(retrievedBytes)
			} else {
				convertedBytes, decodeErr := decoder.Bytes(retrievedBytes)
				if decodeErr != nil {
					log.Printf("WARNING AsyncLineReader could not decode incoming line: %s", decodeErr)
					continue
				}
				line = string(convertedBytes)
			}
			line = strings.TrimSpace(line)
			if !send(&line) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errorChan <- err
			return
		}
		send(nil)
	}()

	return outputChan, errorChan
}
