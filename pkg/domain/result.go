package domain

// ActionResult is the uniform outcome of an action. At most one of Output and
// Error is meaningful. Image carries a screenshot for the screenshot action,
// or an optional confirmation capture after other actions.
type ActionResult struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Image  []byte `json:"base64_image,omitempty"`
}

// OK returns a successful result with the given output.
func OK(output string) ActionResult {
	return ActionResult{Output: output}
}

// Failed returns a result describing err.
func Failed(err error) ActionResult {
	return ActionResult{Error: err.Error()}
}

// IsError reports whether the action failed.
func (r ActionResult) IsError() bool {
	return r.Error != ""
}

// Text returns the meaningful text of the result: the error when the action
// failed, otherwise the output.
func (r ActionResult) Text() string {
	if r.IsError() {
		return r.Error
	}
	return r.Output
}

// FrameKind tells an executed command from a rejected one on the action
// stream, where there is no HTTP status to do so.
type FrameKind string

const (
	FrameResult   FrameKind = "result"
	FrameRejected FrameKind = "rejected"
)

// ResultFrame is one answer on the action stream. A rejected frame carries
// the validation failure in Result.Error.
type ResultFrame struct {
	Kind   FrameKind    `json:"kind"`
	Result ActionResult `json:"result"`
}
