package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// ReplayPort replays recorded sensor lines as if they arrived on a serial
// port. Commands written to it are captured.
type ReplayPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	done    chan struct{}
	once    sync.Once
}

// NewReplayPort starts replaying lines, one every interval. With loop set
// the recording restarts after the last line; otherwise the port reports
// EOF once the recording is exhausted.
func NewReplayPort(lines []string, interval time.Duration, loop bool) *ReplayPort {
	r, w := io.Pipe()
	p := &ReplayPort{r: r, w: w, done: make(chan struct{})}

	go func() {
		defer w.Close()
		if len(lines) == 0 {
			return
		}
		var tick <-chan time.Time
		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			for _, line := range lines {
				if tick != nil {
					select {
					case <-tick:
					case <-p.done:
						return
					}
				}
				if _, err := io.WriteString(w, strings.TrimRight(line, "\n")+"\n"); err != nil {
					return
				}
			}
			if !loop {
				return
			}
		}
	}()
	return p
}

func (p *ReplayPort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *ReplayPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

// Written returns everything written to the port.
func (p *ReplayPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func (p *ReplayPort) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.r.CloseWithError(errors.New("serial port closed"))
	})
	return nil
}

// NewReplaySerialMux wraps a ReplayPort for dev mode.
func NewReplaySerialMux(lines []string, interval time.Duration, loop bool) *SerialMux[*ReplayPort] {
	return NewSerialMux(NewReplayPort(lines, interval, loop))
}

// ReadFixtureLines splits a recording into non-empty, non-comment lines.
// Lines starting with '#' are comments.
func ReadFixtureLines(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
