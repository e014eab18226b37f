package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nnsuite/nnpipe"
	"github.com/nnsuite/nnpipe/tensor"
)

type launchCommand struct {
	duration time.Duration
	print    bool
}

func newLaunchCmd() *cobra.Command {
	var c launchCommand
	cmd := &cobra.Command{
		Use:   "launch DESCRIPTION",
		Short: "Run pipeline until end of stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return c.run(ctx, cmd, args[0])
		},
	}
	cmd.Flags().DurationVar(&c.duration, "duration", 0, "stop after duration, zero waits for end of stream")
	cmd.Flags().BoolVar(&c.print, "print", false, "print tensors delivered to tensor sinks")
	return cmd
}

func (c *launchCommand) run(ctx context.Context, cmd *cobra.Command, description string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := nnpipe.New(description, nnpipe.WithConfig(cfg), nnpipe.WithStateCallback(func(s nnpipe.State) {
		fmt.Fprintf(cmd.ErrOrStderr(), "state: %v\n", s)
	}))
	if err != nil {
		return err
	}
	if c.print {
		if err := printSinks(p, cmd.OutOrStdout()); err != nil {
			p.Close()
			return err
		}
	}
	if err := p.Start(); err != nil {
		p.Close()
		return err
	}

	if c.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}
	select {
	case <-p.Done():
	case <-ctx.Done():
	}
	if err := p.Close(); err != nil {
		return err
	}
	return p.Err()
}

// printSinks registers printing listener on every tensor sink.
func printSinks(p *nnpipe.Pipeline, w io.Writer) error {
	for _, e := range p.Graph().Sinks() {
		if e.Kind.Name != "tensor_sink" {
			continue
		}
		name := e.Name
		var n int
		l := nnpipe.ListenerFunc(func(d *tensor.Data) {
			n++
			fmt.Fprintf(w, "%s #%d: %v (%d bytes)\n", name, n, d.Info(), d.Size())
		})
		if err := p.RegisterSinkCallback(name, l); err != nil {
			return err
		}
	}
	return nil
}
