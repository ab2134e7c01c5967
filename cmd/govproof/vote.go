package main

import (
	"github.com/urfave/cli/v2"
)

var voteCMD = &cli.Command{
	Name:   "vote",
	Usage:  "Authenticate a signed vote and check its asserted voting power",
	Flags:  voteFlags,
	Action: vote,
}

func vote(ctx *cli.Context) error {
	req, err := parseVoteRequest(ctx)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	outcome, err := s.evaluator.EvaluateVote(s.ctx, req)
	if err != nil {
		return err
	}
	return printVoteOutcome(outcome)
}
