package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/moffa90/go-atdfu/dfu"
)

// progressPrinter renders chunk progress. On a terminal it redraws a single
// line per transfer; otherwise it prints one line per chunk.
type progressPrinter struct {
	w       io.Writer
	tty     bool
	label   string
	lastLen int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &progressPrinter{w: w, tty: tty}
}

// Update is a dfu.ProgressCallback.
func (p *progressPrinter) Update(pr dfu.Progress) {
	line := formatProgress(pr)

	if !p.tty {
		fmt.Fprintln(p.w, line)
		return
	}

	if p.label != "" && p.label != pr.Label {
		fmt.Fprintln(p.w)
		p.lastLen = 0
	}
	p.label = pr.Label

	pad := ""
	if n := p.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
	p.lastLen = len(line)
}

// State is a dfu.StateCallback. It ends the progress line once a session
// completes or fails so the result starts on a fresh line.
func (p *progressPrinter) State(_, to dfu.State) {
	if to.Terminal() {
		p.Done()
	}
}

// Done ends a pending terminal line.
func (p *progressPrinter) Done() {
	if p.tty && p.label != "" {
		fmt.Fprintln(p.w)
	}
	p.label = ""
	p.lastLen = 0
}

func formatProgress(pr dfu.Progress) string {
	line := fmt.Sprintf("%s [%d/%d] %5.1f%%  %s / %s  %s/s",
		pr.Label, pr.Chunk, pr.TotalChunks, pr.Percentage,
		formatBytes(pr.BytesSent), formatBytes(pr.TotalBytes),
		humanize.Bytes(uint64(pr.Speed())))

	if pr.Command != "" {
		line += "  " + pr.Command + " -> " + pr.Notification
	}
	return line
}

func formatBytes(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
