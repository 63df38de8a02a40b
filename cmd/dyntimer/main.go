package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"dyntimer/internal/app"
	"dyntimer/internal/config"
	"dyntimer/internal/storage"
	logx "dyntimer/pkg/logx"
)

const defaultConfig = "./config.yaml"

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Usage: "path to config yaml or json",
	Value: defaultConfig,
}

func main() {
	a := cli.App{
		Name:      "dyntimer",
		HelpName:  "dyntimer",
		Usage:     "millisecond task scheduler",
		UsageText: "dyntimer <command> [arguments...]",
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "run the scheduler daemon with the configured jobs",
				Action: run,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:      "demo",
				Usage:     "run a bundled demo until its tasks drain",
				ArgsUsage: "<period|span|once|mixed>",
				Action:    demo,
				Flags: []cli.Flag{
					cli.DurationFlag{Name: "duration, d", Usage: "stop after this long (0 waits for the tasks to drain)"},
					cli.StringFlag{Name: "log-level", Value: "warn"},
				},
			},
			{
				Name:   "history",
				Usage:  "print recent task runs from the history store",
				Action: history,
				Flags: []cli.Flag{
					configFlag,
					cli.IntFlag{Name: "limit, n", Value: 20},
				},
			},
			{
				Name:   "check",
				Usage:  "validate a config file",
				Action: check,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}
	if err := a.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	d, err := app.NewApp(ctx.String("config"))
	if err != nil {
		return err
	}
	if err := d.Start(context.Background()); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(stopCtx, app.StopFatalError)
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-d.Done():
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx, reason); err != nil {
		return err
	}
	return d.Err()
}

func demo(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return cli.NewExitError(fmt.Sprintf("demo name required: %v", app.DemoNames()), 2)
	}

	c, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if d := ctx.Duration("duration"); d > 0 {
		var cancelT context.CancelFunc
		c, cancelT = context.WithTimeout(c, d)
		defer cancelT()
	}
	return app.RunDemo(c, name, logx.NewConsole(ctx.String("log-level")), os.Stdout)
}

func history(ctx *cli.Context) error {
	st, err := app.OpenHistory(ctx.String("config"), logx.Nop())
	if errors.Is(err, storage.ErrDisabled) {
		return cli.NewExitError("history is disabled: no storage configured", 1)
	}
	if err != nil {
		return err
	}
	defer st.Close()

	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runs, err := st.RecentRuns(c, ctx.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tID\tNAME\tMODE\tEVENT\tRUNS\tTOOK\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%dms\t%s\n",
			r.At.Local().Format("2006-01-02 15:04:05.000"), r.TaskID, r.Name, r.Mode, r.Event, r.Runs, r.TookMS, r.Error)
	}
	return tw.Flush()
}

func check(ctx *cli.Context) error {
	path := ctx.String("config")
	cfg, err := config.NewManager(path).Parse()
	if err != nil {
		return err
	}
	if err := app.ValidateConfig(context.Background(), cfg); err != nil {
		return err
	}

	enabled := 0
	for _, j := range cfg.Jobs {
		if !j.Disabled {
			enabled++
		}
	}
	driver := "none"
	if cfg.Storage != nil && cfg.Storage.Driver != "" {
		driver = cfg.Storage.Driver
	}
	fmt.Printf("%s: ok (%d jobs, %d enabled, storage=%s)\n", path, len(cfg.Jobs), enabled, driver)
	return nil
}
