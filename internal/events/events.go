// Package events defines the outbound event union produced by the
// runtime and drained by the pump, and the FIFO that carries it.
package events

import "time"

// Kind names an event variant.
type Kind string

const (
	KindInfo             Kind = "info"
	KindSyntaxError      Kind = "syntax_error"
	KindRuntimeError     Kind = "error"
	KindIncoming         Kind = "incoming"
	KindMultiMessage     Kind = "multi_message"
	KindMidiOutPorts     Kind = "midi_out_ports"
	KindMidiInPorts      Kind = "midi_in_ports"
	KindReplaceBuffer    Kind = "replace-buffer"
	KindReplaceBufferIdx Kind = "replace-buffer-idx"
	KindRunBufferIdx     Kind = "run-buffer-idx"
	KindReplaceLines     Kind = "replace-lines"
	KindVersion          Kind = "version"
	KindAllJobsCompleted Kind = "all_jobs_completed"
	KindJob              Kind = "job"
	KindAck              Kind = "ack"
	KindPassthrough      Kind = "websocket_osc"
	KindExit             Kind = "exit"
)

// Event is one outbound notification.  The set of implementations in
// this package is closed; the pump drops any other kind.
type Event interface {
	Kind() Kind
}

// Sink accepts events without blocking.
type Sink interface {
	Push(e Event)
}

// Int returns a pointer to v, for optional fields.
func Int(v int) *int { return &v }

// String returns a pointer to s, for optional fields.
func String(s string) *string { return &s }

// Info is a styled log line.
type Info struct {
	Style int
	Text  string
}

// SyntaxError reports code that failed to parse.
type SyntaxError struct {
	JobID       int
	Description string
	ErrorLine   string // offending source line
	Line        *int   // nil means unknown (-1)
}

// RuntimeError reports a failure while running a job.
type RuntimeError struct {
	JobID       int
	Description string
	Backtrace   []string // required
	Line        *int     // nil means unknown (-1)
}

// Incoming echoes an OSC message received from outside.
type Incoming struct {
	Time    string
	ID      int
	Address string // required
	Args    string // rendered argument list
}

// LogValue is one styled entry of a MultiMessage.
type LogValue struct {
	Style int
	Text  string
}

// MultiMessage is a batch of log lines from one job.
type MultiMessage struct {
	JobID      int
	ThreadName string
	Runtime    string
	Values     []LogValue // required
}

// MidiOutPorts lists the available MIDI outputs.
type MidiOutPorts struct{ Ports []string }

// MidiInPorts lists the available MIDI inputs.
type MidiInPorts struct{ Ports []string }

// ReplaceBuffer replaces an editor buffer's content by id.
type ReplaceBuffer struct {
	BufferID  string  // required
	Content   *string // nil sends an internal-error placeholder
	Line      int
	Index     int
	FirstLine int
}

// ReplaceBufferIdx replaces an editor buffer's content by tab index.
type ReplaceBufferIdx struct {
	BufferIdx int
	Content   *string
	Line      int
	Index     int
	FirstLine int
}

// RunBufferIdx asks the peer to run the buffer at a tab index.
type RunBufferIdx struct{ BufferIdx int }

// ReplaceLines replaces a line range in a buffer.
type ReplaceLines struct {
	BufferID   string // required
	Content    *string
	StartLine  *int // defaults to PointLine
	FinishLine *int // defaults to the start line
	PointLine  int
	PointIndex int
}

// Version reports the running and latest available versions.
type Version struct {
	Version          string
	VersionNum       int
	LatestVersion    string
	LatestVersionNum int
	LastChecked      time.Time // required
	Platform         string    // empty selects the host description
}

// AllJobsCompleted signals that no job is running.
type AllJobsCompleted struct{}

// Job carries a job status change.  It is not forwarded yet.
type Job struct {
	JobID  int
	Action string
}

// Ack answers a ping.
type Ack struct{ ID string }

// Passthrough sends an arbitrary message to the WebSocket endpoint.
type Passthrough struct {
	Path string // required
	Body []interface{}
}

// Exit stops the pump after one shutdown notice.
type Exit struct{}

func (Info) Kind() Kind             { return KindInfo }
func (SyntaxError) Kind() Kind      { return KindSyntaxError }
func (RuntimeError) Kind() Kind     { return KindRuntimeError }
func (Incoming) Kind() Kind         { return KindIncoming }
func (MultiMessage) Kind() Kind     { return KindMultiMessage }
func (MidiOutPorts) Kind() Kind     { return KindMidiOutPorts }
func (MidiInPorts) Kind() Kind      { return KindMidiInPorts }
func (ReplaceBuffer) Kind() Kind    { return KindReplaceBuffer }
func (ReplaceBufferIdx) Kind() Kind { return KindReplaceBufferIdx }
func (RunBufferIdx) Kind() Kind     { return KindRunBufferIdx }
func (ReplaceLines) Kind() Kind     { return KindReplaceLines }
func (Version) Kind() Kind          { return KindVersion }
func (AllJobsCompleted) Kind() Kind { return KindAllJobsCompleted }
func (Job) Kind() Kind              { return KindJob }
func (Ack) Kind() Kind              { return KindAck }
func (Passthrough) Kind() Kind      { return KindPassthrough }
func (Exit) Kind() Kind             { return KindExit }
