package contextpack

import "encoding/json"

const (
	boundaryStart = "<!-- edda:context:start -->"
	boundaryEnd   = "<!-- edda:context:end -->"
)

type hookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

type hookOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

// Wrap bounds body in boundary markers and marshals it into the
// {hookSpecificOutput: {hookEventName, additionalContext}} envelope hooks
// print to stdout.
func Wrap(hookEventName, body string) ([]byte, error) {
	wrapped := boundaryStart + "\n" + body + "\n" + boundaryEnd
	return json.Marshal(hookOutput{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName:     hookEventName,
			AdditionalContext: wrapped,
		},
	})
}
