package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/bell/internal/core/doctor"
	"github.com/hay-kot/bell/internal/core/notify"
	"github.com/hay-kot/bell/internal/core/styles"
	"github.com/hay-kot/bell/pkg/iojson"
)

type DoctorCmd struct {
	flags  *Flags
	format string
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on your bell setup",
		UsageText:   "bell doctor [options]",
		Description: "Checks the configuration, the snapshot storage backend and whether the relay is reachable.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	checks := []doctor.Check{
		doctor.ConfigCheck{Config: cfg, ConfigPath: cmd.flags.ConfigPath},
	}

	backend, err := OpenBackend(ctx, cfg)
	if err == nil {
		defer func() { _ = backend.Close() }()
		checks = append(checks, doctor.StorageCheck{Backend: backend.KV, BackendName: backend.Name})
	}
	checks = append(checks, doctor.RelayCheck{Relay: cfg.Relay})

	results := doctor.RunAll(ctx, checks)
	if err != nil {
		results = append(results, doctor.Result{
			Name:  "Storage",
			Items: []doctor.CheckItem{{Label: "backend " + cfg.Store.Backend, Status: doctor.StatusFail, Detail: err.Error()}},
		})
	}

	passed, warned, failed := doctor.Summary(results)

	if cmd.format == "json" {
		out := struct {
			Healthy bool            `json:"healthy"`
			Summary summaryJSON     `json:"summary"`
			Checks  []doctor.Result `json:"checks"`
		}{
			Healthy: failed == 0,
			Summary: summaryJSON{Passed: passed, Warned: warned, Failed: failed},
			Checks:  results,
		}
		if err := iojson.Write(c.Root().Writer, out); err != nil {
			return err
		}
	} else {
		cmd.outputText(results)
	}

	if failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

type summaryJSON struct {
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

func (cmd *DoctorCmd) outputText(results []doctor.Result) {
	w := os.Stderr
	var (
		success = styles.TypeStyle(notify.TypeSuccess)
		warning = styles.TypeStyle(notify.TypeWarning)
		failure = styles.TypeStyle(notify.TypeError)
	)

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, styles.TitleStyle.Render("Bell Doctor"))
	_, _ = fmt.Fprintln(w, styles.MutedStyle.Render(strings.Repeat("─", 40)))
	_, _ = fmt.Fprintln(w)

	for _, result := range results {
		_, _ = fmt.Fprintln(w, styles.UnreadStyle.Render(result.Name))

		for _, item := range result.Items {
			var detail string
			if item.Detail != "" {
				detail = " " + styles.MutedStyle.Render(item.Detail)
			}

			var icon string
			switch item.Status {
			case doctor.StatusPass:
				icon = success.Render(styles.IconSuccess)
			case doctor.StatusWarn:
				icon = warning.Render(styles.IconWarning)
			case doctor.StatusFail:
				icon = failure.Render(styles.IconError)
			}

			_, _ = fmt.Fprintf(w, "  %s %s%s\n", icon, item.Label, detail)
		}
		_, _ = fmt.Fprintln(w)
	}

	passed, warned, failed := doctor.Summary(results)
	_, _ = fmt.Fprintf(w, "%s  %s  %s\n",
		success.Render(fmt.Sprintf("%d passed", passed)),
		warning.Render(fmt.Sprintf("%d warnings", warned)),
		failure.Render(fmt.Sprintf("%d failed", failed)),
	)
}
