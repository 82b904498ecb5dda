package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/internal/testutil"
)

// echo replies to every message it receives with an INFORM.
type echo struct {
	rt       *Runtime
	received atomic.Int32
}

func (e *echo) Run(ctx context.Context, inbox <-chan model.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-inbox:
			e.received.Add(1)
			if err := e.rt.Send(ctx, msg.Reply(model.KindInform, nil)); err != nil {
				return err
			}
		}
	}
}

type collector struct {
	got chan model.Message
}

func (c *collector) Run(ctx context.Context, inbox <-chan model.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-inbox:
			c.got <- msg
		}
	}
}

func TestSendAndReply(t *testing.T) {
	rt := New()
	ctx := context.Background()

	e := &echo{rt: rt}
	c := &collector{got: make(chan model.Message, 1)}
	testutil.AssertNoError(t, rt.Spawn(ctx, "echo", e))
	testutil.AssertNoError(t, rt.Spawn(ctx, "collector", c))

	err := rt.Send(ctx, model.Message{Kind: model.KindCFP, From: "collector", To: "echo", ConversationID: "c1"})
	testutil.AssertNoError(t, err)

	select {
	case msg := <-c.got:
		testutil.AssertEqual(t, model.KindInform, msg.Kind)
		testutil.AssertEqual(t, model.ParticipantID("echo"), msg.From)
		testutil.AssertEqual(t, "c1", msg.ConversationID)
	case <-time.After(time.Second):
		t.Fatal("no reply received")
	}

	rt.Stop("echo")
	rt.Stop("collector")
	rt.Wait()
	testutil.AssertEqual(t, 0, rt.Len())
}

func TestSendUnknown(t *testing.T) {
	rt := New()
	err := rt.Send(context.Background(), model.Message{To: "nobody"})
	if !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("Send() err = %v, want ErrUnknownParticipant", err)
	}
}

func TestSpawnDuplicate(t *testing.T) {
	rt := New()
	ctx := context.Background()
	c := &collector{got: make(chan model.Message, 1)}
	testutil.AssertNoError(t, rt.Spawn(ctx, "a", c))
	if err := rt.Spawn(ctx, "a", c); !errors.Is(err, ErrAlreadySpawned) {
		t.Fatalf("Spawn() err = %v, want ErrAlreadySpawned", err)
	}
	rt.Stop("a")
	rt.Wait()
}

func TestStopIsIdempotent(t *testing.T) {
	rt := New()
	ctx := context.Background()
	testutil.AssertNoError(t, rt.Spawn(ctx, "a", &collector{got: make(chan model.Message)}))

	testutil.AssertTrue(t, rt.Stop("a"))
	testutil.AssertFalse(t, rt.Stop("a"))
	rt.Wait()
	testutil.AssertFalse(t, rt.Alive("a"))

	err := rt.Send(ctx, model.Message{To: "a"})
	if !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("Send() after Stop err = %v, want ErrUnknownParticipant", err)
	}
}

type selfStopper struct {
	rt *Runtime
	id model.ParticipantID
}

func (s *selfStopper) Run(ctx context.Context, inbox <-chan model.Message) error {
	<-inbox
	s.rt.Stop(s.id)
	<-ctx.Done()
	return nil
}

func TestParticipantCanStopItself(t *testing.T) {
	rt := New()
	ctx := context.Background()
	testutil.AssertNoError(t, rt.Spawn(ctx, "buyer", &selfStopper{rt: rt, id: "buyer"}))
	testutil.AssertNoError(t, rt.Send(ctx, model.Message{To: "buyer"}))

	done := make(chan struct{})
	go func() {
		rt.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("self-stopping participant did not exit")
	}
}

type finisher struct{}

func (finisher) Run(ctx context.Context, inbox <-chan model.Message) error {
	return nil
}

func TestReturnedParticipantIsReleased(t *testing.T) {
	rt := New()
	testutil.AssertNoError(t, rt.Spawn(context.Background(), "done", finisher{}))
	rt.Wait()
	testutil.AssertFalse(t, rt.Alive("done"))
	testutil.AssertFalse(t, rt.Stop("done"))
}
