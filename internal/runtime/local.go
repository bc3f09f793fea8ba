package runtime

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"oscgate/internal/events"
	"oscgate/util"
)

// LocalOptions configures a Local runtime.
type LocalOptions struct {
	Version Version
	Latest  Version
	MidiIn  []string
	MidiOut []string
}

// Local keeps buffers and mixer state in memory and answers commands
// with the events a real runtime would emit.  It evaluates nothing:
// runs complete immediately.
type Local struct {
	sink events.Sink
	log  *util.Logger
	opts LocalOptions

	mu         sync.Mutex
	buffers    map[string]string
	nextJob    int
	heartbeats map[string]time.Time
	recording  bool
	recorded   bool
	midiOn     bool
	cueOn      bool
	cueOpen    bool
	updatesOn  bool
	lastCheck  time.Time

	mixer   *LocalMixer
	updates localUpdates
}

// NewLocal returns a Local runtime that publishes to sink.
func NewLocal(sink events.Sink, log *util.Logger, opts LocalOptions) *Local {
	if log == nil {
		log = util.NewLogger(0)
	}
	l := &Local{
		sink:       sink,
		log:        log,
		opts:       opts,
		buffers:    make(map[string]string),
		heartbeats: make(map[string]time.Time),
		updatesOn:  true,
		lastCheck:  time.Now(),
	}
	l.mixer = &LocalMixer{sink: sink, amp: 1}
	l.updates = localUpdates{l}
	return l
}

func (l *Local) info(format string, args ...interface{}) {
	l.sink.Push(events.Info{Text: fmt.Sprintf(format, args...)})
}

// ── Code and buffers ─────────────────────────────────────────────────

// Evaluate implements Runtime.  Unbalanced brackets are reported as a
// syntax error; anything else completes at once.
func (l *Local) Evaluate(code string, opts EvalOptions) error {
	l.mu.Lock()
	l.nextJob++
	job := l.nextJob
	l.mu.Unlock()

	if line, text, ok := unbalanced(code); ok {
		l.sink.Push(events.SyntaxError{
			JobID:       job,
			Description: "unbalanced brackets",
			ErrorLine:   text,
			Line:        events.Int(line),
		})
		return nil
	}
	if !opts.Silent {
		if opts.Workspace != "" {
			l.info("=> Starting run %d in %s", job, opts.Workspace)
		} else {
			l.info("=> Starting run %d", job)
		}
	}
	l.sink.Push(events.Job{JobID: job, Action: "completed"})
	l.sink.Push(events.AllJobsCompleted{})
	return nil
}

// SaveBuffer implements Runtime.
func (l *Local) SaveBuffer(id, content string) error {
	if id == "" {
		return fmt.Errorf("save buffer: empty buffer id")
	}
	l.mu.Lock()
	l.buffers[id] = content
	l.mu.Unlock()
	return nil
}

// LoadBuffer implements Runtime.  Unknown buffers load as empty.
func (l *Local) LoadBuffer(id string) error {
	if id == "" {
		return fmt.Errorf("load buffer: empty buffer id")
	}
	l.mu.Lock()
	content := l.buffers[id]
	l.mu.Unlock()
	l.sink.Push(events.ReplaceBuffer{BufferID: id, Content: events.String(content)})
	return nil
}

// Buffer returns the saved content of id.
func (l *Local) Buffer(id string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.buffers[id]
	return s, ok
}

// ── Editor transforms ────────────────────────────────────────────────

// ReindentAfterNewline implements Runtime.  The cursor line is given
// the indentation its position in the block structure calls for.
func (l *Local) ReindentAfterNewline(id, buf string, line, index, firstLine int) error {
	lines := strings.Split(buf, "\n")
	if line < 0 || line >= len(lines) {
		return fmt.Errorf("newline and indent: line %d outside buffer of %d lines", line, len(lines))
	}
	fixed := indent(lines)
	l.sink.Push(events.ReplaceLines{
		BufferID:   id,
		Content:    events.String(fixed[line]),
		StartLine:  events.Int(line),
		FinishLine: events.Int(line),
		PointLine:  line,
		PointIndex: leadingSpaces(fixed[line]),
	})
	return nil
}

// IndentOrCompleteSnippet implements Runtime.  Local has no snippets,
// so it always indents.
func (l *Local) IndentOrCompleteSnippet(id, buf string, sel Selection) error {
	return l.IndentSelection(id, buf, sel)
}

// IndentSelection implements Runtime.
func (l *Local) IndentSelection(id, buf string, sel Selection) error {
	lines := strings.Split(buf, "\n")
	if err := checkSelection(sel, len(lines)); err != nil {
		return fmt.Errorf("indent selection: %w", err)
	}
	fixed := indent(lines)
	l.replaceLines(id, fixed, sel, sel.Index+leadingSpaces(fixed[sel.Line])-leadingSpaces(lines[sel.Line]))
	return nil
}

// ToggleComment implements Runtime.  When every non-blank selected
// line is commented the comments are removed; otherwise "# " is added.
func (l *Local) ToggleComment(id, buf string, sel Selection) error {
	lines := strings.Split(buf, "\n")
	if err := checkSelection(sel, len(lines)); err != nil {
		return fmt.Errorf("toggle comment: %w", err)
	}
	out := append([]string(nil), lines...)
	uncomment := true
	for i := sel.Start; i <= sel.Finish; i++ {
		t := strings.TrimSpace(lines[i])
		if t != "" && !strings.HasPrefix(t, "#") {
			uncomment = false
			break
		}
	}
	for i := sel.Start; i <= sel.Finish; i++ {
		n := leadingSpaces(lines[i])
		pad, rest := lines[i][:n], lines[i][n:]
		switch {
		case rest == "":
		case uncomment:
			rest = strings.TrimPrefix(strings.TrimPrefix(rest, "#"), " ")
			out[i] = pad + rest
		default:
			out[i] = pad + "# " + rest
		}
	}
	l.replaceLines(id, out, sel, sel.Index+len(out[sel.Line])-len(lines[sel.Line]))
	return nil
}

// Beautify implements Runtime.  The whole buffer is reindented.
func (l *Local) Beautify(id, buf string, line, index, firstLine int) error {
	fixed := strings.Join(indent(strings.Split(buf, "\n")), "\n")
	l.sink.Push(events.ReplaceBuffer{
		BufferID:  id,
		Content:   events.String(fixed),
		Line:      line,
		Index:     index,
		FirstLine: firstLine,
	})
	return nil
}

func (l *Local) replaceLines(id string, lines []string, sel Selection, point int) {
	if point < 0 {
		point = 0
	}
	l.sink.Push(events.ReplaceLines{
		BufferID:   id,
		Content:    events.String(strings.Join(lines[sel.Start:sel.Finish+1], "\n")),
		StartLine:  events.Int(sel.Start),
		FinishLine: events.Int(sel.Finish),
		PointLine:  sel.Line,
		PointIndex: point,
	})
}

func checkSelection(sel Selection, n int) error {
	if sel.Start < 0 || sel.Finish >= n || sel.Start > sel.Finish {
		return fmt.Errorf("selection %d-%d outside buffer of %d lines", sel.Start, sel.Finish, n)
	}
	if sel.Line < 0 || sel.Line >= n {
		return fmt.Errorf("cursor line %d outside buffer of %d lines", sel.Line, n)
	}
	return nil
}

var (
	opensBlock  = regexp.MustCompile(`(\bdo(\s*\|[^|]*\|)?|[{\[(])\s*(#.*)?$`)
	closesBlock = regexp.MustCompile(`^(end\b|[}\])])`)
)

// indent reindents lines two spaces per open do/end or bracket block.
func indent(lines []string) []string {
	out := make([]string, len(lines))
	depth := 0
	for i, raw := range lines {
		t := strings.TrimSpace(raw)
		if closesBlock.MatchString(t) && depth > 0 {
			depth--
		}
		if t == "" {
			out[i] = ""
		} else {
			out[i] = strings.Repeat("  ", depth) + t
		}
		if opensBlock.MatchString(t) && !strings.HasPrefix(t, "#") {
			depth++
		}
	}
	return out
}

func leadingSpaces(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t"))
}

// unbalanced finds the first unmatched bracket.  Brackets inside
// strings and comments are not special-cased.
func unbalanced(code string) (line int, text string, found bool) {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	type open struct {
		r    rune
		line int
	}
	var stack []open
	lines := strings.Split(code, "\n")
	for n, l := range lines {
		for _, r := range l {
			switch r {
			case '(', '[', '{':
				stack = append(stack, open{r, n})
			case ')', ']', '}':
				if len(stack) == 0 || stack[len(stack)-1].r != pairs[r] {
					return n + 1, l, true
				}
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) > 0 {
		n := stack[len(stack)-1].line
		return n + 1, lines[n], true
	}
	return 0, "", false
}

// ── Session ──────────────────────────────────────────────────────────

// StopJobs implements Runtime.
func (l *Local) StopJobs() error {
	l.info("Stopping all runs...")
	l.sink.Push(events.AllJobsCompleted{})
	return nil
}

// Exit implements Runtime.  The pump sends the shutdown notice when it
// reaches the Exit event.
func (l *Local) Exit() error {
	l.log.Info("runtime: exit requested")
	l.sink.Push(events.Exit{})
	return nil
}

// Heartbeat implements Runtime.
func (l *Local) Heartbeat(clientID string) error {
	l.mu.Lock()
	l.heartbeats[clientID] = time.Now()
	l.mu.Unlock()
	return nil
}

// LastHeartbeat returns when clientID last checked in.
func (l *Local) LastHeartbeat(clientID string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.heartbeats[clientID]
	return t, ok
}

// ── Recording ────────────────────────────────────────────────────────

// RecordingStart implements Runtime.
func (l *Local) RecordingStart() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recording {
		return fmt.Errorf("recording already in progress")
	}
	l.recording, l.recorded = true, false
	l.info("Recording started")
	return nil
}

// RecordingStop implements Runtime.
func (l *Local) RecordingStop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recording {
		return fmt.Errorf("no recording in progress")
	}
	l.recording, l.recorded = false, true
	l.info("Recording stopped")
	return nil
}

// RecordingDelete implements Runtime.
func (l *Local) RecordingDelete() error {
	l.mu.Lock()
	l.recorded = false
	l.mu.Unlock()
	return nil
}

// RecordingSave implements Runtime.
func (l *Local) RecordingSave(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("save recording: empty filename")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recorded {
		return fmt.Errorf("save recording: nothing recorded")
	}
	l.info("Saving recording to %s", filename)
	return nil
}

// ── Mixer ────────────────────────────────────────────────────────────

// Mixer implements Runtime.
func (l *Local) Mixer() Mixer { return l.mixer }

// LocalMixer records mixer settings.
type LocalMixer struct {
	sink events.Sink

	mu       sync.Mutex
	inverted bool
	mono     bool
	hpf      float64 // 0 = off
	lpf      float64 // 0 = off
	amp      float64
}

// MixerState is a snapshot of a LocalMixer.
type MixerState struct {
	Inverted bool
	Mono     bool
	HPF      float64
	LPF      float64
	Amp      float64
}

// State returns the current settings.
func (m *LocalMixer) State() MixerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MixerState{m.inverted, m.mono, m.hpf, m.lpf, m.amp}
}

func (m *LocalMixer) set(fn func()) error {
	m.mu.Lock()
	fn()
	m.mu.Unlock()
	return nil
}

func (m *LocalMixer) InvertStereo() error   { return m.set(func() { m.inverted = true }) }
func (m *LocalMixer) StandardStereo() error { return m.set(func() { m.inverted = false }) }
func (m *LocalMixer) StereoMode() error     { return m.set(func() { m.mono = false }) }
func (m *LocalMixer) MonoMode() error       { return m.set(func() { m.mono = true }) }
func (m *LocalMixer) HPFDisable() error     { return m.set(func() { m.hpf = 0 }) }
func (m *LocalMixer) LPFDisable() error     { return m.set(func() { m.lpf = 0 }) }

func (m *LocalMixer) HPFEnable(freq float64) error {
	if freq <= 0 {
		return fmt.Errorf("hpf: frequency %v must be positive", freq)
	}
	return m.set(func() { m.hpf = freq })
}

func (m *LocalMixer) LPFEnable(freq float64) error {
	if freq <= 0 {
		return fmt.Errorf("lpf: frequency %v must be positive", freq)
	}
	return m.set(func() { m.lpf = freq })
}

// Volume clamps amp to 0..5.
func (m *LocalMixer) Volume(amp float64, smoothed, silent bool) error {
	if amp < 0 {
		amp = 0
	}
	if amp > 5 {
		amp = 5
	}
	m.set(func() { m.amp = amp }) //nolint:errcheck
	if !silent {
		m.sink.Push(events.Info{Text: fmt.Sprintf("Setting main volume to %g", amp)})
	}
	return nil
}

// ── MIDI and cues ────────────────────────────────────────────────────

// MidiSystemStart implements Runtime.
func (l *Local) MidiSystemStart(silent bool) error {
	l.mu.Lock()
	l.midiOn = true
	l.mu.Unlock()
	if !silent {
		l.info("Starting MIDI subsystems...")
	}
	l.sink.Push(events.MidiInPorts{Ports: append([]string(nil), l.opts.MidiIn...)})
	l.sink.Push(events.MidiOutPorts{Ports: append([]string(nil), l.opts.MidiOut...)})
	return nil
}

// MidiSystemStop implements Runtime.
func (l *Local) MidiSystemStop(silent bool) error {
	l.mu.Lock()
	l.midiOn = false
	l.mu.Unlock()
	if !silent {
		l.info("Stopping MIDI subsystems...")
	}
	return nil
}

// MidiSystemReset implements Runtime.
func (l *Local) MidiSystemReset(silent bool) error {
	if err := l.MidiSystemStop(true); err != nil {
		return err
	}
	if !silent {
		l.info("Resetting MIDI subsystems...")
	}
	return l.MidiSystemStart(true)
}

// CueServerRestart implements Runtime.  open selects whether the cue
// port accepts messages from other hosts.
func (l *Local) CueServerRestart(open, silent bool) error {
	l.mu.Lock()
	l.cueOn, l.cueOpen = true, open
	l.mu.Unlock()
	if !silent {
		if open {
			l.info("Cue server listening for external OSC")
		} else {
			l.info("Cue server listening for local OSC only")
		}
	}
	return nil
}

// CueServerStop implements Runtime.
func (l *Local) CueServerStop(silent bool) error {
	l.mu.Lock()
	l.cueOn = false
	l.mu.Unlock()
	if !silent {
		l.info("Cue server stopped")
	}
	return nil
}

// Subsystems reports whether MIDI and the cue server are running.
func (l *Local) Subsystems() (midi, cues, cuesOpen bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.midiOn, l.cueOn, l.cueOpen
}

// ── Versions ─────────────────────────────────────────────────────────

// UpdateChecker implements Runtime.
func (l *Local) UpdateChecker() UpdateChecker { return l.updates }

// CurrentVersion implements Runtime.
func (l *Local) CurrentVersion() Version { return l.opts.Version }

// ServerVersion implements Runtime.  Without network access the latest
// known release is the configured one, or the running version.
func (l *Local) ServerVersion() Version {
	if l.opts.Latest.Name == "" {
		return l.opts.Version
	}
	return l.opts.Latest
}

// LastUpdateCheck implements Runtime.  Before any check it is the
// process start time.
func (l *Local) LastUpdateCheck() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastCheck
}

// UpdatesEnabled reports whether update checking is on.
func (l *Local) UpdatesEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updatesOn
}

type localUpdates struct{ l *Local }

func (u localUpdates) Enable() error {
	u.l.mu.Lock()
	u.l.updatesOn = true
	u.l.mu.Unlock()
	return nil
}

func (u localUpdates) Disable() error {
	u.l.mu.Lock()
	u.l.updatesOn = false
	u.l.mu.Unlock()
	return nil
}

// CheckNow records a check and publishes the version report.
func (u localUpdates) CheckNow() error {
	l := u.l
	now := time.Now()
	l.mu.Lock()
	l.lastCheck = now
	l.mu.Unlock()

	cur, latest := l.CurrentVersion(), l.ServerVersion()
	l.sink.Push(events.Version{
		Version:          cur.Name,
		VersionNum:       cur.Num,
		LatestVersion:    latest.Name,
		LatestVersionNum: latest.Num,
		LastChecked:      now,
	})
	return nil
}
