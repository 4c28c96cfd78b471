package webhook

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/go-github/v57/github"
)

// ErrPayloadMalformed is returned when a delivery body cannot be decoded.
var ErrPayloadMalformed = errors.New("malformed payload")

// Push holds the fields of a push delivery that drive a deploy.
type Push struct {
	Ref        string
	SHA        string
	Repository string
}

// ParsePush decodes a push delivery body. Only presence is checked; an empty
// ref is left for the Filter to reject.
func ParsePush(body []byte) (*Push, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrPayloadMalformed)
	}

	parsed, err := github.ParseWebHook(EventPush, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}

	event, ok := parsed.(*github.PushEvent)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected event type %T", ErrPayloadMalformed, parsed)
	}

	sha := event.GetAfter()
	if sha == "" {
		sha = event.GetHeadCommit().GetID()
	}

	return &Push{
		Ref:        event.GetRef(),
		SHA:        sha,
		Repository: event.GetRepo().GetName(),
	}, nil
}
