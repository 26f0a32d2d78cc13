package coordination

import "encoding/json"

func jsonUnmarshalQuiet(raw []byte, v interface{}) bool {
	return json.Unmarshal(raw, v) == nil
}
