package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/govproof"
	"github.com/axiomesh/govproof/core"
	"github.com/axiomesh/govproof/repo"
	"github.com/axiomesh/govproof/state"
	"github.com/axiomesh/govproof/store"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var blockFlag = &cli.Uint64Flag{
	Name:  "block",
	Usage: "block to evaluate at, overrides block_number from the config",
}

// session holds what a single command run needs. close releases the store
// and the node connection.
type session struct {
	ctx       context.Context
	config    *repo.Config
	store     *store.Store
	evaluator *core.Evaluator
	close     func()
}

func loadRepo(ctx *cli.Context) (*repo.Repo, error) {
	p, err := getRootPath(ctx)
	if err != nil {
		return nil, err
	}
	r, err := repo.Load(p)
	if err != nil {
		return nil, err
	}
	if ctx.IsSet(blockFlag.Name) {
		r.Config.BlockNumber = ctx.Uint64(blockFlag.Name)
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(filepath.Join(r.Config.RepoRoot, repo.LogsDirName)),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return nil, fmt.Errorf("log initialize: %w", err)
	}
	return r, nil
}

// openSession connects to the node unless offline is set, in which case the
// evaluator has no live source and may only replay stored snapshots.
func openSession(ctx *cli.Context, offline bool) (*session, error) {
	r, err := loadRepo(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	closers := []func(){stop}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	st, err := store.Open(r.Config.StorePath(), newLogger(r.Config))
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, func() { _ = st.Close() })

	var source core.Source
	if !offline {
		client, err := core.Dial(runCtx, r.Config.DialUrl, r.Config.RPC.DialRetries, r.Config.RPC.DialBackoff)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, client.Close)

		rpc, err := state.NewRPC(client, r.Config.RPC.CacheSize, newLogger(r.Config))
		if err != nil {
			closeAll()
			return nil, err
		}
		source = rpc
	}

	evaluator, err := core.NewEvaluator(r.Config, source, st)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("new evaluator error: %w", err)
	}

	return &session{
		ctx:       runCtx,
		config:    r.Config,
		store:     st,
		evaluator: evaluator,
		close:     closeAll,
	}, nil
}

func newLogger(config *repo.Config) *logrus.Logger {
	logger := log.New()
	logger.SetLevel(log.ParseLevel(config.Log.Level))
	return logger
}

func printVersion() {
	fmt.Printf("govproof version: %s-%s-%s\n", govproof.CurrentVersion, govproof.CurrentBranch, govproof.CurrentCommit)
	fmt.Printf("App build date: %s\n", govproof.BuildDate)
	fmt.Printf("System version: %s\n", govproof.Platform)
	fmt.Printf("Golang version: %s\n", govproof.GoVersion)
	fmt.Println()
}
