package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MRamiBalles/TankArenaBridge/internal/domain/rules"
	"github.com/MRamiBalles/TankArenaBridge/internal/envclient"
	"github.com/MRamiBalles/TankArenaBridge/internal/protocol"
)

type episodeResult struct {
	Winner  int
	Steps   int
	Elapsed time.Duration
}

type stats struct {
	Episodes int
	Wins     map[int]int
	Draws    int
	Steps    int
	Elapsed  time.Duration
}

// env is the part of envclient.Env the agent drives.
type env interface {
	Reset(ctx context.Context) (envclient.StepResult, error)
	Step(ctx context.Context, actions map[int]protocol.Action) (envclient.StepResult, error)
}

// play runs n episodes. Results of completed episodes are kept on error.
func play(ctx context.Context, e env, p *policy, entities []int, n int, onEpisode func(int, episodeResult)) (stats, error) {
	s := stats{Wins: make(map[int]int)}
	for ep := 1; ep <= n; ep++ {
		start := time.Now()
		res, err := e.Reset(ctx)
		if err != nil {
			return s, fmt.Errorf("episode %d: %w", ep, err)
		}
		steps := 0
		for !res.Done {
			actions := make(map[int]protocol.Action, len(entities))
			for _, id := range entities {
				actions[id] = p.Act()
			}
			if res, err = e.Step(ctx, actions); err != nil {
				return s, fmt.Errorf("episode %d step %d: %w", ep, steps, err)
			}
			steps++
		}

		r := episodeResult{Winner: res.Winner, Steps: steps, Elapsed: time.Since(start)}
		s.add(r)
		if onEpisode != nil {
			onEpisode(ep, r)
		}
	}
	return s, nil
}

func (s *stats) add(r episodeResult) {
	s.Episodes++
	s.Steps += r.Steps
	s.Elapsed += r.Elapsed
	if r.Winner == rules.NoWinner {
		s.Draws++
	} else {
		s.Wins[r.Winner]++
	}
}

func (s stats) print(w io.Writer) {
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintf(w, "episodes: %s  steps: %s  elapsed: %s\n",
		humanize.Comma(int64(s.Episodes)), humanize.Comma(int64(s.Steps)), s.Elapsed.Round(time.Millisecond))
	if s.Episodes == 0 {
		return
	}
	for team := 0; team < 2; team++ {
		fmt.Fprintf(w, "team %d wins: %d (%.1f%%)\n", team, s.Wins[team], 100*float64(s.Wins[team])/float64(s.Episodes))
	}
	fmt.Fprintf(w, "draws: %d\n", s.Draws)
	if s.Elapsed > 0 {
		fmt.Fprintf(w, "throughput: %s steps/s\n",
			humanize.FtoaWithDigits(float64(s.Steps)/s.Elapsed.Seconds(), 1))
	}
}
