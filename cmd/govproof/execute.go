package main

import (
	"github.com/urfave/cli/v2"
)

var executeCMD = &cli.Command{
	Name:   "execute",
	Usage:  "Check whether a proposal tally passes the execution strategy",
	Flags:  executeFlags,
	Action: execute,
}

func execute(ctx *cli.Context) error {
	req, err := parseExecutionRequest(ctx)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	outcome, err := s.evaluator.EvaluateExecution(s.ctx, req)
	if err != nil {
		return err
	}
	return printExecutionOutcome(outcome)
}
