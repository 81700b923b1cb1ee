package davisvp2

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// readWithTimeout/readByteWithTimeout/readFull wrap bufio.Reader reads in
// a goroutine+channel race against a timer, since tarm/goserial's port
// type (unlike net.Conn) exposes no SetReadDeadline. This is the same
// "timeout via a side goroutine" shape the teacher's own davis station.go
// uses around its serial reads.

func (s *Station) readWithTimeout(timeout time.Duration) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := s.reader.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-time.After(timeout):
		return "", fmt.Errorf("timed out after %s", timeout)
	}
}

func (s *Station) readByteWithTimeout(timeout time.Duration) (byte, error) {
	type result struct {
		b   byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := s.reader.ReadByte()
		ch <- result{b, err}
	}()
	select {
	case r := <-ch:
		return r.b, r.err
	case <-time.After(timeout):
		return 0, fmt.Errorf("timed out after %s", timeout)
	}
}

func readFull(r *bufio.Reader, buf []byte, timeout time.Duration) (int, error) {
	ch := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(r, buf)
		ch <- err
	}()
	select {
	case err := <-ch:
		return len(buf), err
	case <-time.After(timeout):
		return 0, fmt.Errorf("timed out after %s", timeout)
	}
}
