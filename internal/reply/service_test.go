package reply

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replysmith/replysmith/internal/llm/driver"
)

type fakeDriver struct {
	lastRequest *driver.Request
	response    *driver.Response
	err         error
}

func (d *fakeDriver) Complete(_ context.Context, req *driver.Request) (*driver.Response, error) {
	d.lastRequest = req
	return d.response, d.err
}

func (d *fakeDriver) Name() string { return "fake" }

func TestGenerateBuildsMessagesAndTrims(t *testing.T) {
	fake := &fakeDriver{response: &driver.Response{Text: "  Thank you, Sam!  "}}
	svc := NewService(fake, "llama-3.1-8b-instant", 0.6)

	text, err := svc.Generate(context.Background(), Input{
		Review:       "  Great service, arrived on time.  ",
		Tone:         ToneWarm,
		Length:       LengthShort,
		ReviewerName: "Sam",
	})
	require.NoError(t, err)
	require.Equal(t, "Thank you, Sam!", text)

	req := fake.lastRequest
	require.NotNil(t, req)
	require.Equal(t, "llama-3.1-8b-instant", req.Model)
	require.NotNil(t, req.Temperature)
	require.InDelta(t, 0.6, *req.Temperature, 0.0001)
	require.Len(t, req.Messages, 2)

	require.Equal(t, "system", req.Messages[0].Role)
	require.Contains(t, req.Messages[0].Content, "Warm, grateful, and personable.")
	require.Contains(t, req.Messages[0].Content, `"Sam"`)

	require.Equal(t, "user", req.Messages[1].Role)
	require.Contains(t, req.Messages[1].Content, `"""Great service, arrived on time."""`)
	require.Contains(t, req.Messages[1].Content, "Write the reply now.")
}

func TestGeneratePropagatesDriverError(t *testing.T) {
	wantErr := errors.New("boom")
	fake := &fakeDriver{err: wantErr}
	svc := NewService(fake, "model", 0.6)

	_, err := svc.Generate(context.Background(), Input{Review: "ok review"})
	require.ErrorIs(t, err, wantErr)
}

func TestGenerateEmptyReply(t *testing.T) {
	fake := &fakeDriver{response: &driver.Response{Text: "   "}}
	svc := NewService(fake, "model", 0.6)

	_, err := svc.Generate(context.Background(), Input{Review: "ok review"})
	require.ErrorIs(t, err, ErrEmptyReply)
}
