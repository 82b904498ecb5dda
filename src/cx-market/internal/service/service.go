package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/auction"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/bidder"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/delegation"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/registry"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/runtime"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/store"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/strategy"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrInvalidRequest  = errors.New("invalid auction request")
)

// BuyerID is the participant id of the buyer in every auction scope.
const BuyerID model.ParticipantID = "company"

type Settings struct {
	Mode           model.Mode
	Settlement     model.SettlementRule
	RoundTimeout   time.Duration
	AckTimeout     time.Duration
	DelegationWait time.Duration
	ThinkTimeMin   time.Duration
	ThinkTimeMax   time.Duration
	// Seed makes every run reproducible when non-zero.
	Seed           uint64
	DefaultBidders []model.BidderSpec
}

// coordinator is satisfied by both auction kinds.
type coordinator interface {
	runtime.Participant
	Done() <-chan struct{}
	Outcome() model.Outcome
}

type run struct {
	coord coordinator
	rt    *runtime.Runtime
}

// Service runs auctions, each in its own registry scope and runtime, and
// keeps their outcomes for the life of the process.
type Service struct {
	store    store.DirectoryStore
	events   auction.EventPublisher
	settings Settings

	mu    sync.RWMutex
	runs  map[string]*run
	order []string
	wg    sync.WaitGroup
}

func New(st store.DirectoryStore, publisher auction.EventPublisher, settings Settings) *Service {
	if settings.Mode == "" {
		settings.Mode = model.ModeIterative
	}
	if settings.Settlement == "" {
		settings.Settlement = model.FirstPrice
	}
	return &Service{
		store:    st,
		events:   publisher,
		settings: settings,
		runs:     make(map[string]*run),
	}
}

// Start launches an auction in the background and returns at once.
func (s *Service) Start(ctx context.Context, req model.AuctionRequest) (model.AuctionResponse, error) {
	id, r, err := s.launch(context.WithoutCancel(ctx), req)
	if err != nil {
		return model.AuctionResponse{}, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-r.coord.Done()
		r.rt.Wait()
	}()
	out := r.coord.Outcome()
	return model.AuctionResponse{AuctionID: id, Status: model.AuctionStatusRunning, StartedAt: out.StartedAt}, nil
}

// Run executes one auction to completion. Cancelling ctx aborts the
// auction and still tears every participant down.
func (s *Service) Run(ctx context.Context, req model.AuctionRequest) (model.Outcome, error) {
	_, r, err := s.launch(ctx, req)
	if err != nil {
		return model.Outcome{}, err
	}
	<-r.coord.Done()
	r.rt.Wait()
	return r.coord.Outcome(), nil
}

func (s *Service) Get(ctx context.Context, auctionID string) (model.Outcome, error) {
	s.mu.RLock()
	r, ok := s.runs[auctionID]
	s.mu.RUnlock()
	if !ok {
		return model.Outcome{}, ErrAuctionNotFound
	}
	return r.coord.Outcome(), nil
}

// List returns every auction of this process, oldest first.
func (s *Service) List(ctx context.Context) []model.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Outcome, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.runs[id].coord.Outcome())
	}
	return out
}

// Wait blocks until every auction started with Start has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) launch(ctx context.Context, req model.AuctionRequest) (string, *run, error) {
	title := strings.TrimSpace(req.JobTitle)
	if err := auction.ValidateJob(title, req.Price); err != nil {
		return "", nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = s.settings.Mode
	}
	if mode != model.ModeIterative && mode != model.ModeSealed {
		return "", nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}
	settlement := req.Settlement
	if settlement == "" {
		settlement = s.settings.Settlement
	}
	if settlement != model.FirstPrice && settlement != model.SecondPrice {
		return "", nil, fmt.Errorf("%w: unknown settlement rule %q", ErrInvalidRequest, settlement)
	}
	specs, err := s.bidderSpecs(req.Bidders)
	if err != nil {
		return "", nil, err
	}

	auctionID := uuid.NewString()
	rt := runtime.New()
	reg := registry.New(auctionID, s.store, rt)
	seed := s.seed()

	for i, spec := range specs {
		id := model.ParticipantID(spec.Name)
		tolerance := model.DefaultTolerancePercent
		if spec.Tolerance != nil {
			tolerance = *spec.Tolerance
		}
		base := seed + uint64(i)*2
		b := bidder.New(bidder.Config{
			ID:             id,
			Mode:           mode,
			Tolerance:      tolerance,
			Source:         strategy.NewSource(base),
			MinDelay:       s.settings.ThinkTimeMin,
			MaxDelay:       s.settings.ThinkTimeMax,
			DelegationWait: s.settings.DelegationWait,
		}, reg, rt, delegation.NewNegotiator(rt, reg, strategy.NewSource(base+1), s.events))

		if err := s.join(ctx, rt, reg, id, model.RoleBidder, b); err != nil {
			reg.TerminateAll(ctx)
			rt.Wait()
			return "", nil, err
		}
	}

	opts := auction.Options{
		AuctionID:    auctionID,
		RoundTimeout: s.settings.RoundTimeout,
		AckTimeout:   s.settings.AckTimeout,
		Settlement:   settlement,
		Publisher:    s.events,
	}
	job := model.NewJob(title, req.Price)
	var coord coordinator
	if mode == model.ModeSealed {
		coord = auction.NewSealed(BuyerID, job, reg, rt, opts)
	} else {
		coord = auction.NewIterative(BuyerID, job, reg, rt, opts)
	}

	r := &run{coord: coord, rt: rt}
	s.mu.Lock()
	s.runs[auctionID] = r
	s.order = append(s.order, auctionID)
	s.mu.Unlock()

	if err := s.join(ctx, rt, reg, BuyerID, model.RoleBuyer, coord); err != nil {
		reg.TerminateAll(ctx)
		rt.Wait()
		s.mu.Lock()
		delete(s.runs, auctionID)
		s.order = s.order[:len(s.order)-1]
		s.mu.Unlock()
		return "", nil, err
	}

	slog.InfoContext(ctx, "auction_started",
		"auction_id", auctionID,
		"mode", mode,
		"settlement", settlement,
		"job_title", title,
		"price", req.Price,
		"bidders", len(specs),
		"seed", seed,
	)
	return auctionID, r, nil
}

// join registers before spawning so the buyer always finds every bidder.
func (s *Service) join(ctx context.Context, rt *runtime.Runtime, reg *registry.Registry, id model.ParticipantID, role model.Role, p runtime.Participant) error {
	if err := reg.Register(ctx, id, role); err != nil {
		return err
	}
	if err := rt.Spawn(ctx, id, p); err != nil {
		return fmt.Errorf("spawn %s: %w", id, err)
	}
	return nil
}

func (s *Service) bidderSpecs(requested []model.BidderSpec) ([]model.BidderSpec, error) {
	specs := requested
	if len(specs) == 0 {
		specs = s.settings.DefaultBidders
	}
	out := make([]model.BidderSpec, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			name = fmt.Sprintf("carrier-%d", i+1)
		}
		if model.ParticipantID(name) == BuyerID || strings.Contains(name, ":") {
			return nil, fmt.Errorf("%w: bidder name %q is reserved", ErrInvalidRequest, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate bidder %q", ErrInvalidRequest, name)
		}
		seen[name] = true
		spec.Name = name
		out = append(out, spec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) seed() uint64 {
	if s.settings.Seed != 0 {
		return s.settings.Seed
	}
	return rand.Uint64()
}
