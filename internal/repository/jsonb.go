package repository

import "encoding/json"

// jsonbArg marshals v for a jsonb parameter. pgx sends a bare Go string as raw JSON text,
// so scalar strings must be encoded first. nil becomes SQL NULL.
func jsonbArg(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
