// Package protocol defines the command and response shapes exchanged
// between the worker and its parent process. Commands arrive as loosely
// structured maps; responses are action-specific maps with a reserved
// "error" key for failures.
package protocol

// Recognized command actions.
const (
	ActionLoad  = "load"
	ActionEmbed = "embed"
	ActionInfo  = "info"
	ActionExit  = "exit"
)

// Command keys. KeyCommand is authoritative when both are present.
const (
	KeyCommand = "command"
	KeyAction  = "action"
	KeyData    = "data"
)

// Command is one inbound request. Arbitrary extra keys are carried along
// untouched so the payload-or-self fallback keeps working.
type Command map[string]any

// Action resolves the command's action name. The "command" key is checked
// first, then "action"; the first non-empty string wins. A command with
// neither key resolves to "".
func (c Command) Action() string {
	for _, key := range []string{KeyCommand, KeyAction} {
		if v, ok := c[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Payload returns the command's argument mapping: the "data" sub-mapping
// when one is given, otherwise the command itself.
func (c Command) Payload() map[string]any {
	if data, ok := c[KeyData].(map[string]any); ok {
		return data
	}
	return c
}

// Response is one outbound result. Exactly one Response corresponds to
// each validly received Command.
type Response map[string]any

// Errorf builds the error response shape.
func Errorf(msg string) Response {
	return Response{"error": msg}
}

// IsError reports whether r carries an error payload.
func (r Response) IsError() bool {
	s, ok := r["error"].(string)
	return ok && s != ""
}

// LoadResult is the result of a load command.
type LoadResult struct {
	Status    string `json:"status" msgpack:"status"`
	Model     string `json:"model" msgpack:"model"`
	Dimension int    `json:"dimension" msgpack:"dimension"`
}

// EmbedResult is the result of an embed command. Embeddings preserve the
// order of the input texts; Dimension is 0 for an empty input.
type EmbedResult struct {
	Embeddings [][]float32 `json:"embeddings" msgpack:"embeddings"`
	Model      string      `json:"model" msgpack:"model"`
	Dimension  int         `json:"dimension" msgpack:"dimension"`
}

// InfoResult reflects the model cache state without side effects. Model
// and Dimension are null until a model has been loaded.
type InfoResult struct {
	Model     *string `json:"model" msgpack:"model"`
	Dimension *int    `json:"dimension" msgpack:"dimension"`
	Ready     bool    `json:"ready" msgpack:"ready"`
}

func (r LoadResult) Response() Response {
	return Response{"status": r.Status, "model": r.Model, "dimension": r.Dimension}
}

func (r EmbedResult) Response() Response {
	return Response{"embeddings": r.Embeddings, "model": r.Model, "dimension": r.Dimension}
}

func (r InfoResult) Response() Response {
	var model, dimension any
	if r.Model != nil {
		model = *r.Model
	}
	if r.Dimension != nil {
		dimension = *r.Dimension
	}
	return Response{"model": model, "dimension": dimension, "ready": r.Ready}
}

// Ready is the announcement sent once at startup, before the first command
// is read.
func Ready(model string) Response {
	return Response{"status": "ready", "model": model}
}

// Exiting is the final response to an exit command.
func Exiting() Response {
	return Response{"status": "exiting"}
}
