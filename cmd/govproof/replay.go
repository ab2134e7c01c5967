package main

import (
	"github.com/axiomesh/govproof/state"
	"github.com/urfave/cli/v2"
)

var recordFlag = &cli.StringFlag{
	Name:  "record",
	Usage: "replay against the proof of a committed record instead of the block snapshot",
}

var replayCMD = &cli.Command{
	Name:  "replay",
	Usage: "Re-run an evaluation against a stored snapshot without touching the node",
	Subcommands: []*cli.Command{
		{
			Name:   "vote",
			Usage:  "Replay a vote evaluation",
			Flags:  append([]cli.Flag{recordFlag}, voteFlags...),
			Action: replayVote,
		},
		{
			Name:   "execute",
			Usage:  "Replay an execution check",
			Flags:  append([]cli.Flag{recordFlag}, executeFlags...),
			Action: replayExecution,
		},
	},
}

// snapshot picks the record's proof when --record is given, otherwise the
// snapshot stored for the configured block (0 for the latest one).
func (s *session) snapshot(ctx *cli.Context) (*state.Snapshot, error) {
	if key := ctx.String(recordFlag.Name); key != "" {
		committed, err := s.store.Record(key)
		if err != nil {
			return nil, err
		}
		return state.DecodeSnapshot(committed.Proof)
	}
	return s.store.GetSnapshot(s.config.BlockNumber)
}

func replayVote(ctx *cli.Context) error {
	req, err := parseVoteRequest(ctx)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	outcome, err := s.evaluator.ReplayVote(s.ctx, snapshot, req)
	if err != nil {
		return err
	}
	return printVoteOutcome(outcome)
}

func replayExecution(ctx *cli.Context) error {
	req, err := parseExecutionRequest(ctx)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	outcome, err := s.evaluator.ReplayExecution(s.ctx, snapshot, req)
	if err != nil {
		return err
	}
	return printExecutionOutcome(outcome)
}
