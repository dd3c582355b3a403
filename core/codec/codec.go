// Package codec parses queue message bodies into object events.
//
// Message bodies are untrusted structured data. They are only ever parsed
// with encoding/json, never interpreted or evaluated.
package codec

import (
	"encoding/json"
	"net/url"

	"iris/core/errors"
	"iris/core/jobs"
)

// notification is the storage-provider envelope: a list of records, each
// carrying the bucket name and a percent-encoded object key.
type notification struct {
	Records []record `json:"Records"`
}

type record struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// Decode parses a raw message body into an ObjectEvent. The first record
// carries the bucket and key. The key is normalized with the form-encoding
// rule the notifier applies: "+" decodes to a space, "%2B" to a literal
// plus sign.
//
// Decode is a pure function: equal inputs yield equal events and no state
// is touched. Any malformed input is an error; the caller treats it as a
// permanent failure.
func Decode(body []byte) (jobs.ObjectEvent, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return jobs.ObjectEvent{}, errors.Wrap(errors.ErrDecode, err.Error())
	}
	if len(n.Records) == 0 {
		return jobs.ObjectEvent{}, errors.Wrap(errors.ErrDecode, "no records in notification")
	}

	r := n.Records[0]
	bucket := r.S3.Bucket.Name
	rawKey := r.S3.Object.Key
	if bucket == "" || rawKey == "" {
		return jobs.ObjectEvent{}, errors.Wrap(errors.ErrDecode, "record missing bucket or key")
	}

	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return jobs.ObjectEvent{}, errors.Wrap(errors.ErrDecode, "invalid key encoding: "+err.Error())
	}

	return jobs.ObjectEvent{Bucket: bucket, Key: key}, nil
}
