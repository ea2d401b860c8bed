package events

import "encoding/json"

func encodeForTest(v any) ([]byte, error) {
	return json.Marshal(v)
}
