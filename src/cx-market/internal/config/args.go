package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/shopspring/decimal"
)

var ErrInvalidArgs = errors.New("invalid arguments")

var digitsOnly = regexp.MustCompile(`^\d+$`)

// ParseBuyerArgs reads the two positional arguments of the buyer: the job
// title and its price.
func ParseBuyerArgs(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("%w: want \"<job title>\" <price>, got %d arguments", ErrInvalidArgs, len(args))
	}
	title := strings.TrimSpace(args[0])
	if title == "" {
		return "", 0, fmt.Errorf("%w: job title is blank", ErrInvalidArgs)
	}
	if !digitsOnly.MatchString(args[1]) {
		return "", 0, fmt.Errorf("%w: price %q is not a whole number", ErrInvalidArgs, args[1])
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil || !price.IsPositive() || price.GreaterThan(decimal.NewFromInt(1<<31-1)) {
		return "", 0, fmt.Errorf("%w: price %q must be between 1 and %d", ErrInvalidArgs, args[1], 1<<31-1)
	}
	return title, int(price.IntPart()), nil
}

// ParseTolerance reads a percentage between 0 and 100. Anything else yields
// the default.
func ParseTolerance(s string) int {
	s = strings.TrimSpace(s)
	if !digitsOnly.MatchString(s) {
		return model.DefaultTolerancePercent
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.GreaterThan(decimal.NewFromInt(100)) {
		return model.DefaultTolerancePercent
	}
	return int(d.IntPart())
}

// ParseBidder reads "name=PCT" or a bare "PCT"; unnamed bidders are called
// carrier-<n>.
func ParseBidder(s string, n int) model.BidderSpec {
	name, pct, found := strings.Cut(s, "=")
	if !found {
		name, pct = "", s
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("carrier-%d", n)
	}
	tol := ParseTolerance(pct)
	return model.BidderSpec{Name: name, Tolerance: &tol}
}

// ParseBidders reads a comma separated list of bidder specs.
func ParseBidders(list string) []model.BidderSpec {
	var out []model.BidderSpec
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, ParseBidder(part, len(out)+1))
	}
	return out
}

func DefaultBidders() []model.BidderSpec {
	return ParseBidders("carrier-1=50,carrier-2=40,carrier-3=60")
}
