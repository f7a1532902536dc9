package search

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// ActivationSearch spreads activation outward from seed nodes. Activation
// decays by hop_decay and by the traversed edge's weight at every hop, so a
// node's activation can never exceed the seed value and strictly decreases
// along any single path.
type ActivationSearch struct {
	store  storage.GraphReader
	params config.ActivationParams
}

// NewActivationSearch returns a search over the given graph reader.
func NewActivationSearch(store storage.GraphReader, params config.ActivationParams) *ActivationSearch {
	return &ActivationSearch{store: store, params: params}
}

// frontierItem is one pending expansion.
type frontierItem struct {
	id         string
	activation float64
	path       []string
	depth      int
}

// nodeState accumulates a reached node's aggregated activation and the
// strongest single-path contribution (whose path is retained).
type nodeState struct {
	activation float64
	bestSingle float64
	path       []string
}

// Run traverses the graph from the seed nodes under the given budget and
// returns activated nodes sorted by activation descending.
//
// Aggregation when a node is reached via multiple paths follows the
// configured mode: "sum" accumulates (capped at the initial activation) and
// "max" keeps the strongest single path. Either way the retained path is the
// strongest single-path contribution, for explainability.
//
// The tracker may be nil; when present it is fed the top activation after
// each depth level and can terminate traversal early on convergence.
func (s *ActivationSearch) Run(ctx context.Context, seeds []string, budget Budget, tracker *ConvergenceTracker) ([]types.ActivatedNode, error) {
	if len(seeds) == 0 {
		return []types.ActivatedNode{}, nil
	}
	if len(seeds) > budget.EntryPoints {
		seeds = seeds[:budget.EntryPoints]
	}

	reached := make(map[string]*nodeState)
	expanded := make(map[string]bool)
	visited := 0

	frontier := make([]frontierItem, 0, len(seeds))
	for _, id := range seeds {
		frontier = append(frontier, frontierItem{
			id:         id,
			activation: s.params.InitialActivation,
			path:       []string{id},
		})
		reached[id] = &nodeState{
			activation: s.params.InitialActivation,
			bestSingle: s.params.InitialActivation,
			path:       []string{id},
		}
	}

	for depth := 0; depth < budget.MaxHops && len(frontier) > 0; depth++ {
		var next []frontierItem

		for _, item := range frontier {
			if err := ctx.Err(); err != nil {
				return s.collect(reached), err
			}
			if item.activation < s.params.MinThreshold {
				continue
			}
			if expanded[item.id] {
				continue
			}
			if visited >= budget.MaxNodes {
				break
			}
			expanded[item.id] = true
			visited++

			neighbors, err := s.store.GetNeighbors(ctx, item.id)
			if err != nil {
				// A failed neighbor fetch degrades this path, not the search.
				log.Printf("search: neighbors of %s unavailable: %v", item.id, err)
				continue
			}

			for _, nb := range neighbors {
				propagated := item.activation * s.params.HopDecay * clampWeight(nb.Weight)
				if propagated < s.params.MinThreshold {
					continue
				}

				path := appendPath(item.path, nb.Node.ID)
				state, ok := reached[nb.Node.ID]
				if !ok {
					state = &nodeState{}
					reached[nb.Node.ID] = state
				}

				switch s.params.Aggregation {
				case "max":
					if propagated > state.activation {
						state.activation = propagated
					}
				default: // sum
					state.activation += propagated
					if state.activation > s.params.InitialActivation {
						state.activation = s.params.InitialActivation
					}
				}
				if propagated > state.bestSingle {
					state.bestSingle = propagated
					state.path = path
				}

				next = append(next, frontierItem{
					id:         nb.Node.ID,
					activation: propagated,
					path:       path,
					depth:      depth + 1,
				})
			}
		}

		if visited >= budget.MaxNodes {
			break
		}
		if tracker != nil && tracker.Observe(topActivation(reached, expanded)) {
			break
		}
		frontier = next
	}

	return s.collect(reached), nil
}

// collect flattens the reached map into a sorted slice.
func (s *ActivationSearch) collect(reached map[string]*nodeState) []types.ActivatedNode {
	out := make([]types.ActivatedNode, 0, len(reached))
	for id, state := range reached {
		out = append(out, types.ActivatedNode{
			NodeID:     id,
			Activation: state.activation,
			Path:       state.path,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Activation != out[j].Activation {
			return out[i].Activation > out[j].Activation
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

func appendPath(path []string, id string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = id
	return out
}

func topActivation(reached map[string]*nodeState, expanded map[string]bool) float64 {
	top := 0.0
	for id, state := range reached {
		if expanded[id] {
			continue // seeds and already-expanded nodes don't signal progress
		}
		if state.activation > top {
			top = state.activation
		}
	}
	return top
}

// String implements a compact description for logs.
func (b Budget) String() string {
	return fmt.Sprintf("entries=%d hops=%d nodes=%d", b.EntryPoints, b.MaxHops, b.MaxNodes)
}
