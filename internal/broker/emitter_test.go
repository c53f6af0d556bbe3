package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobID = "0b8a3c2e-5f61-4d7a-9e2b-3c4d5e6f7a8b"

type published struct {
	routingKey string
	body       []byte
	delay      time.Duration
}

type fakePublisher struct {
	messages []published
	failAt   int
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, body []byte, _ string) error {
	if p.failAt > 0 && len(p.messages)+1 == p.failAt {
		return errors.New("channel closed")
	}
	p.messages = append(p.messages, published{routingKey: routingKey, body: body})
	return nil
}

func (p *fakePublisher) PublishDelayed(_ context.Context, routingKey string, body []byte, _ string, delay time.Duration) error {
	p.messages = append(p.messages, published{routingKey: routingKey, body: body, delay: delay})
	return nil
}

func newEmitter(p *fakePublisher) *Emitter {
	return NewEmitter(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEmitter_Emit(t *testing.T) {
	pub := &fakePublisher{}
	e := newEmitter(pub)

	err := e.Emit(context.Background(),
		domain.Trigger{JobID: jobID, Stage: domain.StageScript, SectionID: "s01"},
		domain.Trigger{JobID: jobID, Stage: domain.StageScript, SectionID: "s02"},
	)
	require.NoError(t, err)
	require.Len(t, pub.messages, 2)
	assert.Equal(t, "script", pub.messages[0].routingKey)

	decoded, err := domain.DecodeTrigger(pub.messages[1].body)
	require.NoError(t, err)
	assert.Equal(t, "s02", decoded.SectionID)
}

func TestEmitter_EmitStopsAtFirstFailure(t *testing.T) {
	pub := &fakePublisher{failAt: 2}
	e := newEmitter(pub)

	err := e.Emit(context.Background(),
		domain.Trigger{JobID: jobID, Stage: domain.StageSynthesize, SectionID: "s01"},
		domain.Trigger{JobID: jobID, Stage: domain.StageSynthesize, SectionID: "s02"},
		domain.Trigger{JobID: jobID, Stage: domain.StageSynthesize, SectionID: "s03"},
	)
	assert.Error(t, err)
	assert.Len(t, pub.messages, 1)
}

func TestEmitter_RejectsInvalidTrigger(t *testing.T) {
	pub := &fakePublisher{}
	e := newEmitter(pub)

	err := e.Emit(context.Background(), domain.Trigger{JobID: jobID, Stage: domain.StageScript})
	assert.ErrorIs(t, err, domain.ErrInvalidTrigger)
	assert.Empty(t, pub.messages)
}

func TestEmitter_EmitDelayed(t *testing.T) {
	pub := &fakePublisher{}
	e := newEmitter(pub)

	err := e.EmitDelayed(context.Background(), domain.Trigger{JobID: jobID, Stage: domain.StageAnalyze, Attempt: 2}, 4*time.Second)
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "analyze", pub.messages[0].routingKey)
	assert.Equal(t, 4*time.Second, pub.messages[0].delay)
	assert.Contains(t, string(pub.messages[0].body), `"attempt":2`)
}
