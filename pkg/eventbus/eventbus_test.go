package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type args struct {
	data any
}

func bufferLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(level)
	return log, buf
}

func TestPublisher_PublishWithoutSubscribersWarns(t *testing.T) {
	type other struct{}
	log, buf := bufferLogger(logrus.WarnLevel)
	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *args) {
		t.Error("should not be called")
	})

	publisher.Publish(&other{})

	require.Contains(t, buf.String(), "eventbus.Publish: no matching subscribers")
}

func TestPublisher_Subscribe(t *testing.T) {
	log, _ := bufferLogger(logrus.WarnLevel)
	publisher := NewEventPublisher(log)
	var got any
	publisher.Subscribe(func(e *args) {
		got = e.data
	})

	publisher.Publish(&args{data: "test"})

	require.Equal(t, "test", got)
}

func TestPublisher_Unsubscribe(t *testing.T) {
	log, _ := bufferLogger(logrus.WarnLevel)
	publisher := NewEventPublisher(log)
	calls := 0
	handler := func(e *args) { calls++ }
	publisher.Subscribe(handler)
	require.Equal(t, 1, publisher.SubscribersCount())

	publisher.Unsubscribe(handler)
	publisher.Publish(&args{})

	require.Zero(t, calls)
	require.Zero(t, publisher.SubscribersCount())
}

func TestMatchSignature(t *testing.T) {
	type a struct{}
	type b struct{}
	require.True(t, MatchSignature(func(e *a) {}, []any{&a{}}))
	require.False(t, MatchSignature(func(e *a) {}, []any{&b{}}))
	require.False(t, MatchSignature(func(e *a) {}, []any{}))
	require.False(t, MatchSignature(func(e *a) {}, []any{&a{}, &a{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []any{context.Background()}))
	require.True(t, MatchSignature(func(e *a) {}, []any{nil}))
}

func TestPublisher_PanicRecovery(t *testing.T) {
	log, buf := bufferLogger(logrus.ErrorLevel)
	publisher := NewEventPublisher(log)
	secondCalled := false
	publisher.Subscribe(func(e *args) {
		panic("intentional panic for testing")
	})
	publisher.Subscribe(func(e *args) {
		secondCalled = true
	})

	require.NotPanics(t, func() { publisher.Publish(&args{data: "test"}) })

	require.True(t, secondCalled)
	output := buf.String()
	require.True(t, strings.Contains(output, "panicked"))
	require.True(t, strings.Contains(output, "intentional panic for testing"))
}

func TestPublisher_PublishE(t *testing.T) {
	log, _ := bufferLogger(logrus.ErrorLevel)
	publisher := NewEventPublisher(log)

	require.ErrorIs(t, publisher.PublishE(&args{}), ErrNoSubscribers)

	boom := errors.New("boom")
	publisher.Subscribe(func(e *args) error { return boom })
	publisher.Subscribe(func(e *args) error { return nil })
	publisher.Subscribe(func(e *args) (int, error) { return 0, nil })

	err := publisher.PublishE(&args{})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, ErrInvalidHandlerReturn)
}

func TestPublisher_Clear(t *testing.T) {
	publisher := NewEventPublisher(nil)
	publisher.Subscribe(func(e *args) {})
	publisher.Clear()
	require.Zero(t, publisher.SubscribersCount())
}
