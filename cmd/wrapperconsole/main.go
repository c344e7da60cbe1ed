package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guseggert/wrapperconsole/console"
	"github.com/guseggert/wrapperconsole/internal/logging"
	"github.com/guseggert/wrapperconsole/protocol"
	"github.com/guseggert/wrapperconsole/tui"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "wrapperconsole",
		Usage: "console for a supervised server process",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "The console URL. The channel is opened at this URL's path plus \"ws\".",
				Value:   "http://localhost:8080/",
				EnvVars: []string{"WRAPPERCONSOLE_URL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "File for developer logs. The UI defaults to a file in the temp dir, other commands to stderr.",
				EnvVars: []string{"WRAPPERCONSOLE_LOG_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Developer log level.",
				Value:   "info",
				EnvVars: []string{"WRAPPERCONSOLE_LOG_LEVEL"},
			},
		},
		Action: runUI,
		Commands: []*cli.Command{
			{
				Name:   "ui",
				Usage:  "Run the terminal console (default).",
				Action: runUI,
			},
			{
				Name:   "tail",
				Usage:  "Print log entries and status changes until the channel closes.",
				Action: runTail,
			},
			{
				Name:      "send",
				Usage:     "Send one command and exit.",
				ArgsUsage: "PAYLOAD",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "target",
						Usage: "One of [WRAPPER,SERVER].",
						Value: string(protocol.TargetServer),
					},
				},
				Action: runSend,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func pageURL(c *cli.Context) (*url.URL, error) {
	page, err := url.Parse(c.String("url"))
	if err != nil {
		return nil, fmt.Errorf("parsing console URL: %w", err)
	}
	return page, nil
}

func buildLogger(c *cli.Context, defaultFile string) (*zap.Logger, func() error, error) {
	file := c.String("log-file")
	if file == "" {
		file = defaultFile
	}
	logger, closeFn, err := logging.New(logging.Config{Level: c.String("log-level"), File: file})
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, closeFn, nil
}

func runUI(c *cli.Context) error {
	page, err := pageURL(c)
	if err != nil {
		return err
	}
	logger, closeLog, err := buildLogger(c, filepath.Join(os.TempDir(), "wrapperconsole.log"))
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	pane := tui.NewLogPane(80, 20)
	session := console.NewSession(pane, logger.Named("console").Sugar())
	loop := tui.NewProgramLoop()
	ctrl := console.NewController(page, session, loop, console.WithLogger(logger))
	model := tui.NewModel(session, pane, ctrl, tui.WithStart(func() { ctrl.Start(ctx) }))

	program := tea.NewProgram(model, tea.WithAltScreen())
	loop.Attach(program)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}

// statusLoop prints the status label after any posted function changes it.
type statusLoop struct {
	*console.SerialLoop
	session *console.Session
	out     io.Writer
	last    console.Presentation
}

func (l *statusLoop) Post(fn func()) {
	l.SerialLoop.Post(func() {
		fn()
		if p := l.session.Presentation(); p != l.last {
			l.last = p
			fmt.Fprintf(l.out, "[%s] %s\n", p.Mode, p.Label)
		}
	})
}

func runTail(c *cli.Context) error {
	page, err := pageURL(c)
	if err != nil {
		return err
	}
	if _, err := console.Endpoint(page); err != nil {
		return err
	}
	logger, closeLog, err := buildLogger(c, "")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()

	session := console.NewSession(&console.WriterView{Out: os.Stdout, Err: os.Stderr}, logger.Named("console").Sugar())
	loop := &statusLoop{SerialLoop: console.NewSerialLoop(), session: session, out: os.Stdout, last: session.Presentation()}
	ctrl := console.NewController(page, session, loop, console.WithLogger(logger), console.WithOnClose(cancel))

	go ctrl.Start(ctx)
	err = loop.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runSend(c *cli.Context) error {
	page, err := pageURL(c)
	if err != nil {
		return err
	}
	if _, err := console.Endpoint(page); err != nil {
		return err
	}
	target := protocol.Target(strings.ToUpper(c.String("target")))
	if !target.Valid() {
		return fmt.Errorf("unsupported target %q", c.String("target"))
	}
	payload := strings.Join(c.Args().Slice(), " ")
	if payload == "" {
		return fmt.Errorf("a payload is required")
	}

	logger, closeLog, err := buildLogger(c, "")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()

	session := console.NewSession(&console.WriterView{Out: io.Discard}, logger.Named("console").Sugar())
	loop := console.NewSerialLoop()
	var (
		ctrl     *console.Controller
		opened   bool
		written  bool
		writeErr error
	)
	ctrl = console.NewController(page, session, loop,
		console.WithLogger(logger),
		console.WithOnOpen(func() {
			opened = true
			ctrl.Send(protocol.Command{Target: target, Payload: payload})
			ctrl.Close()
		}),
		console.WithOnWrite(func(_ protocol.Command, err error) {
			written = true
			writeErr = err
		}),
		console.WithOnClose(cancel),
	)
	ctrl.Start(ctx)
	_ = loop.Run(ctx)
	switch {
	case !opened:
		return fmt.Errorf("could not connect to %s", page)
	case writeErr != nil:
		return fmt.Errorf("sending command: %w", writeErr)
	case !written:
		return fmt.Errorf("connection to %s closed before the command was sent", page)
	}
	return nil
}
