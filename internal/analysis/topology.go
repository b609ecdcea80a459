package analysis

import (
	"context"
	"fmt"
)

// Target is the route, direction and stop whose last trip is evaluated.
type Target struct {
	RouteID     string
	DirectionID int
	StopID      string
}

// StopSet is a set of stop ids.
type StopSet map[string]struct{}

// Has reports whether id is in the set.
func (s StopSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Partition splits the stops of a route/direction around a target stop.
// Pre holds the stops at or before the target, Post the stops strictly
// after it, each unioned over every representative trip that visits the
// target. A stop may land in both sets when patterns visit it at different
// depths.
type Partition struct {
	Pre  StopSet
	Post StopSet
}

// Terminal reports whether the target is the last stop of every pattern
// that serves it.
func (p Partition) Terminal() bool { return len(p.Post) == 0 }

// Empty reports whether no representative trip serves the target.
func (p Partition) Empty() bool { return len(p.Pre) == 0 }

// Topology gives access to representative stop patterns.
type Topology interface {
	RepresentativeTrips(ctx context.Context, routeID string, directionID int) ([]string, error)
	StopSequence(ctx context.Context, tripID string) ([]string, error)
}

// ResolvePartition builds the partition of t's route/direction around t's
// stop. Each sequence is split at the first visit to the stop; patterns that
// never visit it contribute nothing. Service dates are not considered.
func ResolvePartition(ctx context.Context, topo Topology, t Target) (Partition, error) {
	trips, err := topo.RepresentativeTrips(ctx, t.RouteID, t.DirectionID)
	if err != nil {
		return Partition{}, fmt.Errorf("resolve partition: %w", err)
	}

	p := Partition{Pre: StopSet{}, Post: StopSet{}}
	for _, tripID := range trips {
		stops, err := topo.StopSequence(ctx, tripID)
		if err != nil {
			return Partition{}, fmt.Errorf("resolve partition: %w", err)
		}
		idx := indexOf(stops, t.StopID)
		if idx < 0 {
			continue
		}
		for _, s := range stops[:idx+1] {
			p.Pre[s] = struct{}{}
		}
		for _, s := range stops[idx+1:] {
			p.Post[s] = struct{}{}
		}
	}
	return p, nil
}

func indexOf(stops []string, id string) int {
	for i, s := range stops {
		if s == id {
			return i
		}
	}
	return -1
}
