// Package storage - reconstructor.go
// Rebuilds per-team standings from the episode ledger.
// Standings are never stored; state = f(episodes).
package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
)

// InitialRating is the Elo every team starts from.
const InitialRating = 1200.0

// TeamStanding is the reconstructed record of one team.
type TeamStanding struct {
	Team    int     `json:"team"`
	Played  int     `json:"played"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Draws   int     `json:"draws"`
	Aborted int     `json:"aborted"`
	Rating  float64 `json:"rating"`
}

// Standings is the reconstructed league table.
type Standings struct {
	Episodes int            `json:"episodes"`
	Teams    []TeamStanding `json:"teams"`
}

// Reconstructor rebuilds standings from the episode ledger.
type Reconstructor struct {
	episodeRepo EpisodeRepository
	teams       []int
	k           float64
}

// NewReconstructor creates a reconstructor for a fixed set of teams.
func NewReconstructor(episodeRepo EpisodeRepository, teams []int) *Reconstructor {
	sorted := append([]int(nil), teams...)
	sort.Ints(sorted)
	return &Reconstructor{episodeRepo: episodeRepo, teams: sorted, k: rules.DefaultEloK}
}

// Rebuild replays every recorded episode in the order it ended.
func (r *Reconstructor) Rebuild(ctx context.Context) (*Standings, error) {
	episodes, err := r.episodeRepo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load episodes: %w", err)
	}
	return Compute(episodes, r.teams, r.k), nil
}

// Compute folds episodes into standings. Only two-team ratings are
// meaningful; with more teams each pair is rated independently.
func Compute(episodes []EpisodeRecord, teams []int, k float64) *Standings {
	table := make(map[int]*TeamStanding, len(teams))
	for _, t := range teams {
		table[t] = &TeamStanding{Team: t, Rating: InitialRating}
	}

	for _, ep := range episodes {
		if isAbort(ep.Cause) {
			for _, s := range table {
				s.Aborted++
			}
			continue
		}

		// Deltas are computed from pre-episode ratings.
		deltas := make(map[int]float64, len(table))
		for _, a := range teams {
			for _, b := range teams {
				if a == b {
					continue
				}
				deltas[a] += rules.EloDelta(table[a].Rating, table[b].Rating, score(ep.Winner, a), k)
			}
		}

		for _, t := range teams {
			s := table[t]
			s.Played++
			switch {
			case ep.Winner == rules.NoWinner:
				s.Draws++
			case ep.Winner == t:
				s.Wins++
			default:
				s.Losses++
			}
			s.Rating += deltas[t]
		}
	}

	out := &Standings{Episodes: len(episodes), Teams: make([]TeamStanding, 0, len(teams))}
	for _, t := range teams {
		out.Teams = append(out.Teams, *table[t])
	}
	return out
}

func isAbort(cause string) bool {
	return cause == string(rules.CauseRestart) || cause == string(rules.CauseShutdown)
}

func score(winner, team int) float64 {
	switch winner {
	case rules.NoWinner:
		return 0.5
	case team:
		return 1
	default:
		return 0
	}
}
