package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundTrip(t *testing.T) {
	e := New(TypeTurnCompleted, "abc", map[string]interface{}{"classification": "greeting"})

	raw, err := Marshal(e)
	require.NoError(t, err)

	got, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeTurnCompleted, got.EventType())
	assert.Equal(t, "abc", got.SessionID())
	assert.Equal(t, "greeting", got.Payload()["classification"])
	assert.True(t, e.Timestamp().Equal(got.Timestamp()))
}

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestFanout(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{err: boom}, &recorder{}

	err := Fanout{a, nil, b}.Publish(context.Background(), New(TypeSessionDeleted, "s", nil))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}
