package commands

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lumora-health/breathsense/pkg/breath"
	"github.com/lumora-health/breathsense/pkg/cli"
)

const (
	viewWidth     = 80
	viewHeight    = 24
	viewEventsMax = 50
)

// runView renders the live detection frame on a fixed refresh tick.
// The process loop feeds it results; a render goroutine redraws the
// frame twice a second.
type runView struct {
	frame cli.Frame

	mu     sync.Mutex
	active bool
	state  breath.State
	rate   float64
	conf   float64
	chunks int
	events []string

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

func newRunView(input string, logBuf *cli.LogWriter) *runView {
	v := &runView{
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	v.frame = cli.Frame{
		Styles: cli.NewStyles(cli.DefaultTheme),
		Title:  "breathsense",
		Status: input,
		Sections: []cli.Section{
			{Label: "Detector", Content: v.statusLines},
			{Label: "Events", Content: v.eventLines},
			{Label: "Log", Content: logBuf.Lines},
		},
		Help: "ctrl+c to stop",
	}
	return v
}

func (v *runView) update(now time.Time, res breath.Result, rate float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.chunks++
	v.active = res.Active
	v.state = res.State
	v.rate = rate
	if res.Rate != nil {
		v.conf = res.Rate.Confidence
	}
	for _, ev := range res.Events {
		line := fmt.Sprintf("%s  %-11s %s", now.Format("15:04:05"), ev.Type, describeEvent(ev))
		v.events = append(v.events, line)
		if len(v.events) > viewEventsMax {
			v.events = v.events[1:]
		}
	}
}

func describeEvent(ev breath.Event) string {
	switch ev.Type {
	case breath.EventApnea:
		return "pause " + cli.FormatDuration(ev.Duration)
	case breath.EventInhale, breath.EventDeepBreath:
		return fmt.Sprintf("amplitude %.3f", ev.Amplitude)
	default:
		return ""
	}
}

func (v *runView) statusLines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	activity := "quiet"
	if v.active {
		activity = "breathing activity"
	}
	return []string{
		fmt.Sprintf("state       %s (%s)", v.state, activity),
		fmt.Sprintf("rate        %s  confidence %s", cli.FormatRate(v.rate), cli.FormatConfidence(v.conf)),
		fmt.Sprintf("chunks      %d", v.chunks),
	}
}

func (v *runView) eventLines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.events...)
}

func (v *runView) start(ctx context.Context) {
	go func() {
		defer close(v.stopped)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		fmt.Print("\x1b[?25l") // hide cursor
		for {
			select {
			case <-ctx.Done():
				return
			case <-v.done:
				return
			case <-ticker.C:
				fmt.Print("\x1b[H\x1b[2J")
				fmt.Fprintln(os.Stdout, v.frame.Render(viewWidth, viewHeight))
			}
		}
	}()
}

func (v *runView) stop() {
	v.stopOnce.Do(func() {
		close(v.done)
		<-v.stopped
		fmt.Print("\x1b[?25h\n") // restore cursor
	})
}
