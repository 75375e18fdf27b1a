package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/apex/log"
	"github.com/ivan3bx/hamlaunch"
	"github.com/ivan3bx/hamlaunch/internal/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// shutdowner is a launcher that can be closed for good.
type shutdowner interface {
	hamlaunch.Launcher
	Shutdown(confirm func() bool) error
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the control page and stream output to browsers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run <binary>",
		Short: "Run a binary in the foreground, printing its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sinks := []hamlaunch.Sink{&textSink{w: out}}

			if cfg.ConsoleLog != "" {
				cl, err := openConsoleLog(cfg.ConsoleLog)
				if err != nil {
					return err
				}
				defer cl.Close()
				sinks = append(sinks, cl)
			}

			s := newSupervisor(cfg, sinks...)

			if err := s.Start(args[0]); err != nil {
				return err
			}

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(interrupts)

			confirm := func() bool { return true }
			if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				confirm = promptConfirm(os.Stdin, out, args[0])
			}

			result, err := runBinary(cmd.Context(), s, cfg.PollInterval, interrupts, confirm)

			if err != nil {
				return err
			}

			if result.Exited && result.ExitCode != 0 {
				return fmt.Errorf("%s exited with code %d", args[0], result.ExitCode)
			}

			return nil
		},
	}
}

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the binaries that can be launched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tPATH")

			for _, b := range catalogFor(cfg).List() {
				status := "ok"
				if !b.Available {
					status = b.Problem
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", b.Name, status, b.Path)
			}

			return w.Flush()
		},
	}
}

// serve runs the poll cycle, the status reporter and the web server
// until ctx is done, then stops any running binary.
func serve(ctx context.Context, cfg *config.Config) error {
	log := log.WithField("action", "serve()")

	clients := &hamlaunch.ClientManager{}
	defer clients.Close()

	sinks := []hamlaunch.Sink{clients}

	if cfg.ConsoleLog != "" {
		cl, err := openConsoleLog(cfg.ConsoleLog)
		if err != nil {
			return err
		}
		defer cl.Close()
		sinks = append(sinks, cl)
	}

	s := newSupervisor(cfg, sinks...)

	ph := &processHandler{
		catalog: s.Catalog(),
		liveURL: cfg.LiveURL,
	}

	e := newRouter(s, ph, &clientHandler{clients})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		newStatusReporter(s.Notifier(), clients).Report(ctx)
		return nil
	})

	g.Go(func() error {
		return pollLoop(ctx, s, cfg.PollInterval, nil)
	})

	g.Go(func() error {
		return runWebServer(ctx, cfg.Listen, e)
	})

	err := g.Wait()

	log.Debug("shutdown initiated")
	{
		if serr := s.Shutdown(nil); serr != nil {
			log.WithError(serr).Error("unable to stop process")
		}
		s.Poll()
	}
	log.Info("shutdown complete")

	return err
}

// runBinary polls l until its process exits. An interrupt asks confirm
// whether to stop; declining keeps the process running and polling resumes.
func runBinary(ctx context.Context, l shutdowner, interval time.Duration, interrupts <-chan os.Signal, confirm func() bool) (hamlaunch.PollResult, error) {
	for {
		var result hamlaunch.PollResult

		loopCtx, cancel := context.WithCancel(ctx)

		go func() {
			select {
			case <-interrupts:
				cancel()
			case <-loopCtx.Done():
			}
		}()

		err := pollLoop(loopCtx, l, interval, func(r hamlaunch.PollResult) bool {
			result = r
			return true
		})
		cancel()

		if err != nil || result.Exited {
			return result, err
		}

		err = l.Shutdown(confirm)

		if errors.Is(err, hamlaunch.ErrShutdownDeclined) {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			continue
		}

		// deliver the final lines
		l.Poll()
		return result, err
	}
}

// promptConfirm asks on out whether the running binary should be stopped.
func promptConfirm(in io.Reader, out io.Writer, binary string) func() bool {
	reader := bufio.NewReader(in)

	return func() bool {
		fmt.Fprintf(out, "\n%s is still running. Stop it and quit? [y/N] ", binary)

		answer, err := reader.ReadString('\n')

		if err != nil && answer == "" {
			return true
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
