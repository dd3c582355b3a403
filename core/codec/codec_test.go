package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iris/core/errors"
	"iris/core/jobs"
)

func TestDecode_Notification(t *testing.T) {
	body := []byte(`{"Records":[{"s3":{"bucket":{"name":"in"},"object":{"key":"cat.jpg"}}}]}`)

	event, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, jobs.ObjectEvent{Bucket: "in", Key: "cat.jpg"}, event)
}

func TestDecode_KeyUnescaping(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		// %2B is percent-escaping: a literal plus sign, not a space.
		{"percent-escaped plus", "a%2Bb.jpg", "a+b.jpg"},
		// A bare plus is form encoding for a space.
		{"plus as space", "my+photo.jpg", "my photo.jpg"},
		{"percent-escaped space", "my%20photo.jpg", "my photo.jpg"},
		{"nested path", "uploads/2024/cat.jpg", "uploads/2024/cat.jpg"},
		{"unicode escape", "caf%C3%A9.png", "café.png"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte(`{"Records":[{"s3":{"bucket":{"name":"in"},"object":{"key":"` + tc.raw + `"}}}]}`)
			event, err := Decode(body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, event.Key)
		})
	}
}

func TestDecode_IsDeterministic(t *testing.T) {
	body := []byte(`{"Records":[{"s3":{"bucket":{"name":"in"},"object":{"key":"a%2Bb.jpg"}}}]}`)

	first, err := Decode(body)
	require.NoError(t, err)
	second, err := Decode(body)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `not json at all`},
		{"empty body", ``},
		{"empty records", `{"Records":[]}`},
		{"no records field", `{"foo":"bar"}`},
		{"missing bucket", `{"Records":[{"s3":{"object":{"key":"cat.jpg"}}}]}`},
		{"missing key", `{"Records":[{"s3":{"bucket":{"name":"in"}}}]}`},
		{"broken escape", `{"Records":[{"s3":{"bucket":{"name":"in"},"object":{"key":"bad%zz.jpg"}}}]}`},
		{"code-shaped body", `__import__('os').system('true')`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrDecode), "decode failures must carry ErrDecode")
		})
	}
}

func TestDecode_UsesFirstRecord(t *testing.T) {
	body := []byte(`{"Records":[
		{"s3":{"bucket":{"name":"first"},"object":{"key":"one.jpg"}}},
		{"s3":{"bucket":{"name":"second"},"object":{"key":"two.jpg"}}}
	]}`)

	event, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "first", event.Bucket)
	assert.Equal(t, "one.jpg", event.Key)
}
