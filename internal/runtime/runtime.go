// Package runtime defines the execution runtime the gateway drives,
// and Local, an in-memory stand-in used by the oscgate binary and by
// tests.
package runtime

import "time"

// EvalOptions tunes one evaluation.
type EvalOptions struct {
	Workspace string // buffer the code came from, if any
	Silent    bool
}

// Selection locates a cursor and an optional line range in a buffer.
type Selection struct {
	Start  int // first selected line
	Finish int // last selected line
	Line   int // cursor line
	Index  int // cursor column
}

// Version is a release name with its numeric form.
type Version struct {
	Name string
	Num  int
}

// Runtime is the surface the command router drives.  Replies, where a
// call has any, arrive later as outbound events.
type Runtime interface {
	Evaluate(code string, opts EvalOptions) error
	SaveBuffer(id, content string) error
	LoadBuffer(id string) error

	ReindentAfterNewline(id, buf string, line, index, firstLine int) error
	IndentOrCompleteSnippet(id, buf string, sel Selection) error
	IndentSelection(id, buf string, sel Selection) error
	ToggleComment(id, buf string, sel Selection) error
	Beautify(id, buf string, line, index, firstLine int) error

	StopJobs() error
	Exit() error
	Heartbeat(clientID string) error

	RecordingStart() error
	RecordingStop() error
	RecordingDelete() error
	RecordingSave(filename string) error

	Mixer() Mixer

	MidiSystemStart(silent bool) error
	MidiSystemStop(silent bool) error
	MidiSystemReset(silent bool) error

	CueServerRestart(open, silent bool) error
	CueServerStop(silent bool) error

	UpdateChecker() UpdateChecker
	CurrentVersion() Version
	ServerVersion() Version
	LastUpdateCheck() time.Time
}

// Mixer controls the master output stage.
type Mixer interface {
	InvertStereo() error
	StandardStereo() error
	StereoMode() error
	MonoMode() error
	HPFEnable(freq float64) error
	HPFDisable() error
	LPFEnable(freq float64) error
	LPFDisable() error
	Volume(amp float64, smoothed, silent bool) error
}

// UpdateChecker controls the background release check.
type UpdateChecker interface {
	Enable() error
	Disable() error
	CheckNow() error
}
