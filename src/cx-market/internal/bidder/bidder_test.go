package bidder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/internal/testutil"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []model.Message
}

func (s *recordingSender) Send(ctx context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) last(t *testing.T) model.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return s.sent[len(s.sent)-1]
}

type fixedCount int

func (c fixedCount) ActiveBidderCount() int { return int(c) }

type fakeDelegator struct {
	started []model.ParticipantID
}

func (d *fakeDelegator) Start(ctx context.Context, owner model.ParticipantID, jobTitle string) (model.DelegationVariant, error) {
	d.started = append(d.started, owner)
	return model.SplitA, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func cfp(price int) model.Message {
	return model.Message{
		Kind:           model.KindCFP,
		From:           "company",
		To:             "carrier-a",
		ConversationID: "auction-1",
		Round:          1,
		Body:           model.CallForProposals{JobTitle: "Deliver parcels", Price: price},
	}
}

func TestRespondToCall(t *testing.T) {
	tests := []struct {
		name      string
		mode      model.Mode
		body      any
		draws     []int
		active    int
		wantKind  model.Kind
		wantPrice int
	}{
		{name: "iterative undercut", mode: model.ModeIterative, body: model.CallForProposals{Price: 100}, draws: []int{9}, active: 3, wantKind: model.KindPropose, wantPrice: 90},
		{name: "iterative refuse", mode: model.ModeIterative, body: model.CallForProposals{Price: 100}, draws: []int{0}, active: 3, wantKind: model.KindRefuse},
		{name: "iterative sole survivor accepts asking", mode: model.ModeIterative, body: model.CallForProposals{Price: 100}, draws: []int{0}, active: 1, wantKind: model.KindPropose, wantPrice: 100},
		{name: "sealed undercut", mode: model.ModeSealed, body: model.CallForProposals{Price: 200}, draws: []int{19}, active: 1, wantKind: model.KindPropose, wantPrice: 180},
		{name: "sealed never accepts as survivor", mode: model.ModeSealed, body: model.CallForProposals{Price: 200}, draws: []int{0}, active: 1, wantKind: model.KindRefuse},
		{name: "unreadable call counts as zero", mode: model.ModeIterative, body: "CFP 100", draws: []int{3}, active: 2, wantKind: model.KindRefuse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			b := New(Config{
				ID:        "carrier-a",
				Mode:      tt.mode,
				Tolerance: 50,
				Source:    testutil.NewScriptedSource(tt.draws...),
				Sleep:     noSleep,
			}, fixedCount(tt.active), sender, nil)

			msg := cfp(0)
			msg.Body = tt.body
			b.handle(context.Background(), msg, nil)

			got := sender.last(t)
			testutil.AssertEqual(t, tt.wantKind, got.Kind)
			testutil.AssertEqual(t, model.ParticipantID("company"), got.To)
			testutil.AssertEqual(t, model.ParticipantID("carrier-a"), got.From)
			testutil.AssertEqual(t, 1, got.Round)
			if tt.wantKind == model.KindPropose {
				bid, ok := got.Body.(model.Bid)
				testutil.AssertTrue(t, ok, "body is model.Bid")
				testutil.AssertEqual(t, tt.wantPrice, bid.Price)
			}
		})
	}
}

func TestIterativeWinnerDelegatesThenInforms(t *testing.T) {
	sender := &recordingSender{}
	delegator := &fakeDelegator{}
	b := New(Config{
		ID:             "carrier-a",
		Mode:           model.ModeIterative,
		Source:         testutil.NewScriptedSource(0),
		DelegationWait: time.Second,
	}, fixedCount(1), sender, delegator)

	inbox := make(chan model.Message, 2)
	deal := &model.DelegationDeal{Variant: model.SplitA, DefaultCost: 5, AdjustedCost: 4, Initiator: "carrier-a:A1", Receiver: "carrier-a:A2"}
	inbox <- model.Message{Kind: model.KindReject, From: "stray"}
	inbox <- model.Message{Kind: model.KindInform, From: "carrier-a:A1", To: "carrier-a", Body: deal}

	accept := model.Message{Kind: model.KindAccept, From: "company", To: "carrier-a", Body: model.Award{JobTitle: "Deliver parcels", Price: 90}}
	b.handle(context.Background(), accept, inbox)

	if len(delegator.started) != 1 || delegator.started[0] != "carrier-a" {
		t.Fatalf("delegator started = %v", delegator.started)
	}
	got := sender.last(t)
	testutil.AssertEqual(t, model.KindInform, got.Kind)
	testutil.AssertEqual(t, model.ParticipantID("company"), got.To)
	if got.Body != deal {
		t.Errorf("INFORM body = %v, want the delegation deal", got.Body)
	}
}

func TestDelegationWaitElapsedStillInforms(t *testing.T) {
	sender := &recordingSender{}
	b := New(Config{
		ID:             "carrier-a",
		Mode:           model.ModeIterative,
		Source:         testutil.NewScriptedSource(0),
		DelegationWait: 10 * time.Millisecond,
	}, fixedCount(1), sender, &fakeDelegator{})

	accept := model.Message{Kind: model.KindAccept, From: "company", To: "carrier-a", Body: model.Award{JobTitle: "job", Price: 90}}
	b.handle(context.Background(), accept, make(chan model.Message))

	got := sender.last(t)
	testutil.AssertEqual(t, model.KindInform, got.Kind)
	if got.Body != nil {
		t.Errorf("INFORM body = %v, want nil", got.Body)
	}
}

func TestSealedWinnerInformsWithoutDelegating(t *testing.T) {
	sender := &recordingSender{}
	delegator := &fakeDelegator{}
	b := New(Config{ID: "carrier-a", Mode: model.ModeSealed, Source: testutil.NewScriptedSource(0)}, fixedCount(1), sender, delegator)

	accept := model.Message{Kind: model.KindAccept, From: "company", To: "carrier-a", Body: model.Award{JobTitle: "job", Price: 150}}
	b.handle(context.Background(), accept, nil)

	testutil.AssertEqual(t, 0, len(delegator.started))
	testutil.AssertEqual(t, model.KindInform, sender.last(t).Kind)
}

func TestUnreadableAwardFails(t *testing.T) {
	sender := &recordingSender{}
	b := New(Config{ID: "carrier-a", Source: testutil.NewScriptedSource(0)}, fixedCount(1), sender, &fakeDelegator{})

	b.handle(context.Background(), model.Message{Kind: model.KindAccept, From: "company", To: "carrier-a", Body: 42}, nil)

	got := sender.last(t)
	testutil.AssertEqual(t, model.KindFailure, got.Kind)
	testutil.AssertEqual(t, model.ParticipantID("company"), got.To)
}
