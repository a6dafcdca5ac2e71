package main

import (
	"fmt"
	"os"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// countdownPrinter displays a prefix with the time remaining in a scan
// window, updating in place on stderr.
//
// The caller must call Stop exactly once to clear the line and release the
// internal goroutine. A countdownPrinter is single-use.
type countdownPrinter struct {
	prefix   string
	deadline time.Time
	stopChan chan struct{}
	done     chan struct{}
}

func startCountdown(prefix string, duration time.Duration) *countdownPrinter {
	p := &countdownPrinter{
		prefix:   prefix,
		deadline: time.Now().Add(duration),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *countdownPrinter) run() {
	defer close(p.done)
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			fmt.Fprint(os.Stderr, clearLineSequence)
			return
		case <-ticker.C:
			remaining := time.Until(p.deadline)
			if remaining < 0 {
				remaining = 0
			}
			fmt.Fprintf(os.Stderr, "%s%s (%s left)", clearLineSequence, p.prefix, remaining.Round(time.Second))
		}
	}
}

// Stop clears the progress line and waits for the goroutine to exit.
func (p *countdownPrinter) Stop() {
	close(p.stopChan)
	<-p.done
}
