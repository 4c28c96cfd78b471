package webhook

import (
	"errors"
	"testing"
)

func TestParsePush(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want Push
	}{
		{
			name: "after present",
			body: `{"ref":"refs/heads/main","after":"abc123","head_commit":{"id":"def456"},"repository":{"name":"kryonix"}}`,
			want: Push{Ref: "refs/heads/main", SHA: "abc123", Repository: "kryonix"},
		},
		{
			name: "falls back to head_commit id",
			body: `{"ref":"refs/heads/master","head_commit":{"id":"def456"}}`,
			want: Push{Ref: "refs/heads/master", SHA: "def456"},
		},
		{
			name: "missing fields",
			body: `{}`,
			want: Push{},
		},
		{
			name: "unknown fields ignored",
			body: `{"ref":"refs/heads/main","pusher":{"name":"dev"},"extra":[1,2,3]}`,
			want: Push{Ref: "refs/heads/main"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePush([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParsePush() error = %v", err)
			}
			if *got != tc.want {
				t.Errorf("ParsePush() = %+v, want %+v", *got, tc.want)
			}
		})
	}
}

func TestParsePush_Malformed(t *testing.T) {
	for _, body := range []string{"", "   ", "not json", `{"ref":`, `["refs/heads/main"]`, `{"ref":42}`} {
		t.Run(body, func(t *testing.T) {
			_, err := ParsePush([]byte(body))
			if !errors.Is(err, ErrPayloadMalformed) {
				t.Errorf("ParsePush(%q) error = %v, want ErrPayloadMalformed", body, err)
			}
		})
	}
}
