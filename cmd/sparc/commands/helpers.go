// Package commands implements the sparc CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glbala87/SPARC/api"
	"github.com/glbala87/SPARC/config"
	"github.com/glbala87/SPARC/errors"
	"github.com/glbala87/SPARC/logger"
	"github.com/glbala87/SPARC/watch"
)

// newAPIClient loads configuration and builds the REST client.
func newAPIClient() (*api.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}

	client, err := api.NewClient(cfg, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// followJob subscribes to jobID and prints every status change until the
// job reaches a terminal state or the user interrupts.
func followJob(ctx context.Context, client *api.Client, cfg *config.Config, jobID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := watch.Subscribe(ctx, jobID, watch.Options{
		Dialer:         client.Dialer(cfg),
		Fetcher:        client,
		PollInterval:   cfg.PollInterval(),
		ReconnectDelay: cfg.ReconnectDelay(),
		UpdateBuffer:   cfg.Watch.UpdateBuffer,
		Logger:         logger.Logger,
	})
	if err != nil {
		return err
	}
	defer w.Unsubscribe()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			fmt.Println("\nInterrupted, unsubscribing")
			return nil

		case status, ok := <-w.Updates():
			if !ok {
				return printFinal(w.Status())
			}
			printStatus(status)
		}
	}
}

func printStatus(s watch.JobStatus) {
	link := "polling"
	if s.Connected {
		link = "live"
	}
	fmt.Printf("[%3.0f%%] %-9s (%s) %s\n", s.Progress*100, s.State, link, s.Message)
}

func printFinal(s watch.JobStatus) error {
	switch s.State {
	case watch.StateCompleted:
		fmt.Printf("\nJob %s completed\n", s.JobID)
		for k, v := range s.Result {
			fmt.Printf("  %s: %v\n", k, v)
		}
		return nil
	case watch.StateFailed:
		return errors.Newf("job %s failed: %s", s.JobID, s.Message)
	default:
		fmt.Printf("\nJob %s left in state %s\n", s.JobID, s.State)
		return nil
	}
}
