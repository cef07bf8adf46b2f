package main

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/audio"
	"murmur/delivery"
	"murmur/hotkey"
	"murmur/log"
	"murmur/session"
)

// tui is the --tui observer: a bubbletea program fed by session events.
type tui struct {
	program *tea.Program
	done    chan struct{}
}

type eventMsg session.Event
type toggledMsg struct {
	ack session.Ack
	err error
}
type tickMsg time.Time

func newTUI(provider string, methods []delivery.Method, device *audio.DeviceInfo, listen string, toggle hotkey.ToggleFunc) *tui {
	m := tuiModel{
		state:      session.Idle,
		since:      time.Now(),
		modeLine:   modeLineText(provider, methods),
		deviceLine: deviceLineText(device),
		toggle:     toggle,
	}
	if listen != "" {
		m.listenLine = "control: http://" + listen
	}
	return &tui{
		program: tea.NewProgram(m, tea.WithAltScreen()),
		done:    make(chan struct{}),
	}
}

func (t *tui) Notify(e session.Event) {
	t.program.Send(eventMsg(e))
}

// run blocks until the user quits or quit is called.
func (t *tui) run() {
	defer close(t.done)
	if _, err := t.program.Run(); err != nil {
		log.Warnf("tui_exit: %v", err)
	}
}

func (t *tui) quit() {
	t.program.Quit()
	<-t.done
}

func modeLineText(provider string, methods []delivery.Method) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return fmt.Sprintf("[%s | %s]", provider, strings.Join(names, " > "))
}

func deviceLineText(dev *audio.DeviceInfo) string {
	if dev == nil {
		return "mic: system default"
	}
	if audio.IsBluetooth(dev.Name) {
		return "mic: " + dev.Name + " (BT!)"
	}
	return "mic: " + dev.Name
}

type tuiModel struct {
	state         session.State
	since         time.Time
	frame         int
	width, height int

	modeLine   string
	deviceLine string
	listenLine string
	toggle     hotkey.ToggleFunc
	notice     string

	cycles     int
	lastText   string
	method     delivery.Method
	fallback   bool
	failure    string
	processing time.Time
	latencies  []time.Duration
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "t", " ":
			if m.toggle == nil {
				return m, nil
			}
			toggle := m.toggle
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				ack, err := toggle(ctx)
				return toggledMsg{ack: ack, err: err}
			}
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case toggledMsg:
		switch {
		case msg.err != nil:
			m.notice = msg.err.Error()
		case msg.ack.Action == session.ActionBusy:
			m.notice = "busy: " + string(msg.ack.State)
		default:
			m.notice = ""
		}

	case eventMsg:
		m = m.apply(session.Event(msg))
	}
	return m, nil
}

func (m tuiModel) apply(e session.Event) tuiModel {
	m.since = e.At
	switch e.Kind {
	case session.RecordingStarted:
		m.state = session.Recording
		m.failure = ""
	case session.RecordingStopped:
		m.state = session.Idle
	case session.ProcessingStarted:
		m.state = session.Processing
		m.processing = e.At
	case session.TranscriptionSucceeded:
		m.state = session.Delivering
		m.lastText = e.Text
	case session.DeliverySucceeded:
		m.state = session.Idle
		m.cycles++
		m.method = e.Method
		m.fallback = e.Fallback
		if !m.processing.IsZero() {
			m.latencies = append(m.latencies, e.At.Sub(m.processing))
		}
	case session.RecordingEmpty:
		m.state = session.Idle
		m.failure = "nothing recorded (silence or too short)"
	default:
		if e.Failure() {
			m.state = session.Idle
			m.cycles++
			m.failure = string(e.Kind) + ": " + e.Reason
		}
	}
	return m
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	metricStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

const eyeWidth = 33

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	left := []string{renderEye(m.frame, m.state), m.statusLine()}
	for _, l := range []string{m.modeLine, m.deviceLine, m.listenLine} {
		if l != "" {
			left = append(left, dimStyle.Render(l))
		}
	}
	if m.notice != "" {
		left = append(left, warnStyle.Render(m.notice))
	}
	left = append(left, "",
		faintStyle.Bold(true).Render("Ctrl+Shift+Space")+faintStyle.Render(" or t to record, q to quit"),
		faintStyle.Render("murmur "+version))

	logWidth := max(m.width-eyeWidth-1, 20)
	wrapWidth := max(logWidth-2, 10)

	var right strings.Builder
	switch {
	case m.lastText == "" && m.failure == "":
		right.WriteString(dimStyle.Render("No transcriptions yet"))
	default:
		right.WriteString(metricStyle.Render(fmt.Sprintf("Last transcription (#%d)", m.cycles)) + "\n\n")
		if m.lastText != "" {
			lines := wrapText(m.lastText, wrapWidth)
			for i, line := range lines {
				right.WriteString(textStyle.Render(line))
				if i == len(lines)-1 && m.method != "" && m.failure == "" {
					right.WriteString(" " + okStyle.Render("["+m.deliveredLabel()+"]"))
				}
				right.WriteString("\n")
			}
		}
		if m.failure != "" {
			right.WriteString("\n" + warnStyle.Render(m.failure) + "\n")
		}
		if table := latencyLine(m.latencies); table != "" {
			right.WriteString("\n" + metricStyle.Render(table) + "\n")
		}
	}

	leftPanel := lipgloss.NewStyle().Width(eyeWidth - 1).Height(m.height).Render(strings.Join(left, "\n"))
	rightPanel := lipgloss.NewStyle().Width(logWidth).Height(m.height).PaddingLeft(1).Render(right.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func (m tuiModel) statusLine() string {
	elapsed := time.Since(m.since).Seconds()
	switch m.state {
	case session.Recording:
		return recStyle.Render(fmt.Sprintf("● REC %.1fs", elapsed))
	case session.Processing:
		return busyStyle.Render(fmt.Sprintf("◌ TRANSCRIBING %.1fs", elapsed))
	case session.Delivering:
		return busyStyle.Render("◌ DELIVERING")
	}
	return dimStyle.Render("○ STANDBY")
}

func (m tuiModel) deliveredLabel() string {
	label := "✓ " + string(m.method)
	if m.fallback {
		label += " (fallback)"
	}
	return label
}

// renderEye draws concentric rings with half-block characters. The rings
// breathe while recording and spin while a transcript is on its way.
func renderEye(frame int, state session.State) string {
	const w, h = eyeWidth - 1, 13
	palette := []string{"", "231", "224", "217", "210", "160", "88", "236"}
	var breathe float64
	switch state {
	case session.Recording:
		palette = []string{"", "226", "214", "208", "196", "160", "88", "236"}
		breathe = math.Sin(float64(frame)*0.25) * 0.6
	case session.Processing, session.Delivering:
		palette = []string{"", "159", "117", "75", "33", "25", "18", "236"}
	default:
		breathe = math.Sin(float64(frame)*0.08) * 0.2
	}
	radii := []float64{0.8, 1.8, 2.8, 3.9, 5.0, 6.2, 7.6}

	cx, cy := float64(w)/2, float64(h)
	pixel := func(x, y int) int {
		dx, dy := float64(x)-cx, float64(y)-cy
		dist := math.Sqrt(dx*dx + dy*dy)
		for i, r := range radii {
			if dist < r+breathe*float64(i)/3 {
				c := i + 1
				if state == session.Processing || state == session.Delivering {
					// rotate the highlight around the ring
					angle := math.Atan2(dy, dx) + float64(frame)*0.2
					if math.Mod(angle+4*math.Pi, 2*math.Pi) < 0.8 && c > 1 {
						c--
					}
				}
				return c
			}
		}
		return 0
	}

	var b strings.Builder
	for row := 0; row < h; row++ {
		for x := 0; x < w; x++ {
			top, bot := pixel(x, row*2), pixel(x, row*2+1)
			switch {
			case top == 0 && bot == 0:
				b.WriteByte(' ')
			case top == bot:
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(palette[top])).Render("█"))
			case bot == 0:
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(palette[top])).Render("▀"))
			case top == 0:
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(palette[bot])).Render("▄"))
			default:
				b.WriteString(lipgloss.NewStyle().
					Foreground(lipgloss.Color(palette[top])).
					Background(lipgloss.Color(palette[bot])).Render("▀"))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	line := ""
	for _, w := range words {
		for len([]rune(w)) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			r := []rune(w)
			lines = append(lines, string(r[:width]))
			w = string(r[width:])
		}
		switch {
		case line == "":
			line = w
		case len([]rune(line))+1+len([]rune(w)) <= width:
			line += " " + w
		default:
			lines = append(lines, line)
			line = w
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// percentiles returns min, p50, p90 and max of ds.
func percentiles(ds []time.Duration) [4]time.Duration {
	var out [4]time.Duration
	if len(ds) == 0 {
		return out
	}
	s := slices.Clone(ds)
	slices.Sort(s)
	at := func(p float64) time.Duration {
		return s[int(math.Ceil(p*float64(len(s))))-1]
	}
	out[0] = s[0]
	out[1] = at(0.5)
	out[2] = at(0.9)
	out[3] = s[len(s)-1]
	return out
}

func latencyLine(ds []time.Duration) string {
	if len(ds) == 0 {
		return ""
	}
	p := percentiles(ds)
	ms := func(d time.Duration) int64 { return d.Milliseconds() }
	return fmt.Sprintf("latency ms  min %d  p50 %d  p90 %d  max %d  (n=%d)", ms(p[0]), ms(p[1]), ms(p[2]), ms(p[3]), len(ds))
}
