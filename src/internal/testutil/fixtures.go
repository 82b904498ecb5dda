package testutil

import "sync"

// JobFixture is a job offer as the buyer receives it on the command line.
type JobFixture struct {
	Title string
	Price int
}

func NewJobFixture() JobFixture {
	return JobFixture{Title: "Deliver parcels", Price: 1000}
}

func (j JobFixture) WithTitle(title string) JobFixture {
	j.Title = title
	return j
}

func (j JobFixture) WithPrice(price int) JobFixture {
	j.Price = price
	return j
}

// BidderFixture names a bidder and its tolerance percentage.
type BidderFixture struct {
	Name      string
	Tolerance int
}

func NewBidderFixture(name string) BidderFixture {
	return BidderFixture{Name: name, Tolerance: 50}
}

func (b BidderFixture) WithTolerance(pct int) BidderFixture {
	b.Tolerance = pct
	return b
}

// ScriptedSource replays a fixed sequence of draws and then repeats the
// last one. It satisfies the random source used by bidder strategies.
type ScriptedSource struct {
	mu    sync.Mutex
	draws []int
	pos   int
}

// NewScriptedSource returns draws that IntN(n) will yield, each reduced
// modulo n so scripts stay in range.
func NewScriptedSource(draws ...int) *ScriptedSource {
	return &ScriptedSource{draws: draws}
}

func (s *ScriptedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draws) == 0 || n <= 0 {
		return 0
	}
	d := s.draws[len(s.draws)-1]
	if s.pos < len(s.draws) {
		d = s.draws[s.pos]
		s.pos++
	}
	return d % n
}
