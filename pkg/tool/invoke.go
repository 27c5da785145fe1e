package tool

import (
	"fmt"

	"github.com/localrt/llmcore/pkg/llmerr"
	"github.com/localrt/llmcore/pkg/tool/internal"
)

// Invoke validates arguments against name's compiled schema, then calls its
// registered host callable. Panics from the callable are recovered and
// reported the same way a returned error is (spec §4.4: "Tool invocation
// exceptions are captured, stringified, and become the tool-response
// content with an error: prefix; generation continues").
func (r *Registry) Invoke(name string, arguments map[string]interface{}) (result string, err error) {
	if verr := r.ValidateArguments(name, arguments); verr != nil {
		return "", verr
	}

	r.mu.RLock()
	c, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return "", &llmerr.InvalidTool{ToolName: name, Reason: "no tool registered with this name"}
	}
	if c.tool.Invoke == nil {
		return "", &llmerr.ToolInvocationError{ToolName: name, Detail: "tool has no invoke callable registered"}
	}

	defer func() {
		if p := recover(); p != nil {
			err = &llmerr.ToolInvocationError{ToolName: name, Detail: fmt.Sprintf("panic: %v", p)}
		}
	}()

	out, invErr := c.tool.Invoke(arguments)
	if invErr != nil {
		return "", &llmerr.ToolInvocationError{ToolName: name, Detail: invErr.Error(), Cause: invErr}
	}
	return out, nil
}

// CallAttempt is the outcome of inspecting accumulated generation text for
// a tool-call block bounded by a FramingStyle's delimiters (spec §4.4 step
// 3g). A caller re-checks on every newly streamed token until Closed is
// true (a complete call was assembled) or the turn ends.
type CallAttempt struct {
	Open      bool
	Closed    bool
	Name      string
	Arguments map[string]interface{}
	Malformed bool
}

// ExtractCall inspects accumulated text for the most recent call block
// framed by framing's delimiters. It wraps the package-internal
// FixJSON/ParsePartialJSON machinery (adapted from the teacher's
// pkg/jsonparser) so the chat worker, which lives outside this package's
// internal/ boundary, can drive tool-call interception without duplicating
// that parsing logic.
func ExtractCall(framing FramingStyle, accumulated string) CallAttempt {
	state := internal.CallBlockState{Open: framing.Open, Close: framing.Close}
	body, ok, closed := state.Extract(accumulated)
	if !ok {
		return CallAttempt{}
	}
	if !closed {
		return CallAttempt{Open: true}
	}

	parsed := internal.ParsePartialJSON(body)
	obj, isObj := parsed.Value.(map[string]interface{})
	if !isObj {
		return CallAttempt{Open: true, Closed: true, Malformed: true}
	}
	name, _ := obj["name"].(string)
	args, _ := obj["arguments"].(map[string]interface{})
	if name == "" {
		return CallAttempt{Open: true, Closed: true, Malformed: true}
	}
	return CallAttempt{Open: true, Closed: true, Name: name, Arguments: args}
}
