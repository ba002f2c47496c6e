package ingress

import "encoding/json"

// encodePayload re-marshals an arbitrary decoded JSON value (the
// "payload" or "metadata" field of an inbound request, already
// decoded once by the HTTP layer) back to its canonical compact JSON
// form so C1's codec can compress it uniformly regardless of whether
// the caller came in over HTTP or the in-process relay.
func encodePayload(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}
