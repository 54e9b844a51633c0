package domain

import (
	"bytes"
	"encoding/json"
)

// CompletionNotification is a decoded asynchronous completion event.
// Payload is the full event body and is relayed to the session verbatim.
type CompletionNotification struct {
	TransactionReference string
	Payload              json.RawMessage
	// DiscardedRecords counts records after the first in a batch envelope; they are not relayed
	DiscardedRecords int
}

// snsEvent is the record batch shape used when the event is delivered by a
// notification topic subscription
type snsEvent struct {
	Records []struct {
		Sns struct {
			Message string `json:"Message"`
		} `json:"Sns"`
	} `json:"Records"`
}

// snsHTTPEnvelope is the shape posted by a topic to an HTTP subscriber
type snsHTTPEnvelope struct {
	Type    string  `json:"Type"`
	Message *string `json:"Message"`
}

// DecodeCompletion extracts the completion body from an inbound envelope.
// Accepted shapes:
//   - {"Records":[{"Sns":{"Message":"<json body>"}}]}
//   - {"Type":"Notification","Message":"<json body>"}
//   - the json body itself
//
// The body must be a JSON object with a non-empty string transactionReference.
// An object carrying transactionReference at the top level is always a bare
// body, whatever other fields its payload holds.
func DecodeCompletion(envelope []byte) (*CompletionNotification, error) {
	envelope = bytes.TrimSpace(envelope)
	if len(envelope) == 0 {
		return nil, &DecodeError{Reason: "empty envelope"}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(envelope, &top); err != nil {
		return nil, &DecodeError{Reason: "envelope is not a JSON object", Err: err}
	}

	if _, ok := top["transactionReference"]; ok {
		return decodeBody(envelope)
	}

	body := envelope
	discarded := 0
	switch {
	case top["Records"] != nil:
		var ev snsEvent
		if err := json.Unmarshal(envelope, &ev); err != nil {
			return nil, &DecodeError{Reason: "malformed record batch", Err: err}
		}
		if len(ev.Records) == 0 {
			return nil, &DecodeError{Reason: "record batch is empty"}
		}
		body = []byte(ev.Records[0].Sns.Message)
		discarded = len(ev.Records) - 1
	case top["Type"] != nil && top["Message"] != nil:
		var env snsHTTPEnvelope
		if err := json.Unmarshal(envelope, &env); err != nil {
			return nil, &DecodeError{Reason: "malformed notification envelope", Err: err}
		}
		if env.Message == nil {
			return nil, &DecodeError{Reason: "notification envelope has no message"}
		}
		body = []byte(*env.Message)
	}

	n, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	n.DiscardedRecords = discarded
	return n, nil
}

func decodeBody(body []byte) (*CompletionNotification, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &DecodeError{Reason: "empty message body"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &DecodeError{Reason: "message body is not a JSON object", Err: err}
	}

	raw, ok := fields["transactionReference"]
	if !ok {
		return nil, &DecodeError{Reason: "missing transactionReference"}
	}

	var ref string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, &DecodeError{Reason: "transactionReference is not a string", Err: err}
	}
	if ref == "" {
		return nil, &DecodeError{Reason: "transactionReference is empty"}
	}

	return &CompletionNotification{
		TransactionReference: ref,
		Payload:              json.RawMessage(body),
	}, nil
}
