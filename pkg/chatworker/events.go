package chatworker

// EventKind discriminates the closed set of events a turn's stream may
// emit (spec §6 "Stream contract"). Done and Error are terminal and
// mutually exclusive.
type EventKind int

const (
	// EventToken carries one piece of newly decoded assistant text.
	EventToken EventKind = iota
	// EventToolCallStarted announces that a complete tool call was parsed
	// out of the stream and the host callable is about to run.
	EventToolCallStarted
	// EventToolCallFinished announces a tool call's result (or captured
	// error, see Event.Err) once the host callable has returned.
	EventToolCallFinished
	// EventDone is the terminal success event; Event.Text is the full
	// committed assistant message.
	EventDone
	// EventError is the terminal failure event.
	EventError
)

// Event is one entry in a turn's ordered output stream.
type Event struct {
	Kind EventKind

	// Text holds EventToken's decoded piece, or EventDone's full committed
	// assistant text.
	Text string

	// ToolName and ToolResult are set on EventToolCallStarted (ToolName
	// only) and EventToolCallFinished (both).
	ToolName   string
	ToolResult string

	// Err is set on EventError, and on EventToolCallFinished when the tool
	// invocation failed (ToolResult then holds the "error: ..." text that
	// was also committed as the ToolResponse message's content).
	Err error
}
