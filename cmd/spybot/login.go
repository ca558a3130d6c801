package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/app"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/clifmt"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/gateway"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/logutil"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/outputfmt"
	"github.com/sheraliortiqboyev4-del/spy-bot/monitor"
	"github.com/sheraliortiqboyev4-del/spy-bot/onboarding"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log a user account in through the session gateway and store its session",
		Long: "Runs the phone, code and password steps in the terminal. The stored session\n" +
			"is resumed by the next `spybot serve`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner <= 0 {
				return fmt.Errorf("--owner is required")
			}
			logger, closer, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			defer closer.Close()

			cfg := appConfigFromViper()
			gw, err := gateway.NewClient(cfg.GatewayURL, cfg.GatewayToken, gateway.Options{Logger: logger})
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			resolver := identity.New(store, identity.Options{Logger: logger})

			mgr := onboarding.NewManager(gw, store, resolver, closingLauncher{}, onboarding.Options{Logger: logger})
			return runLogin(cmd.Context(), mgr, owner, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "Telegram user id that receives this account's reports.")
	return cmd
}

// closingLauncher closes the live stream; serve resumes the stored session.
type closingLauncher struct{}

func (closingLauncher) Attach(_ context.Context, s monitor.Stream) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}

func runLogin(ctx context.Context, mgr *onboarding.Manager, owner int64, in *os.File, out io.Writer) error {
	reader := bufio.NewReader(in)
	st := mgr.Start(ctx, owner)
	for {
		fmt.Fprintln(out, clifmt.Key(onboarding.Prompt(st.Step, nil)))
		input, err := readInput(reader, in, out, st.Step == onboarding.StepAwaitingPassword)
		if err != nil {
			mgr.Cancel(ctx, owner)
			return err
		}

		var next onboarding.State
		switch st.Step {
		case onboarding.StepAwaitingPhone:
			next, err = mgr.SubmitPhone(ctx, owner, input)
		case onboarding.StepAwaitingCode:
			next, err = mgr.SubmitCode(ctx, owner, input)
		case onboarding.StepAwaitingPassword:
			next, err = mgr.SubmitPassword(ctx, owner, input)
		default:
			return fmt.Errorf("unexpected login step %s", st.Step)
		}

		if next.Step == onboarding.StepDone {
			if err != nil {
				fmt.Fprintln(out, clifmt.Warn(onboarding.Prompt(next.Step, err)))
				return err
			}
			fmt.Fprintln(out, clifmt.Success("Session stored for owner "+fmt.Sprint(owner)+"."))
			return nil
		}
		if err != nil {
			var le *onboarding.LoginError
			if errors.As(err, &le) && le.Retry {
				fmt.Fprintln(out, clifmt.Warn(onboarding.Message(err)))
				continue
			}
			return fmt.Errorf("login failed: %s", outputfmt.SanitizeErrorText(onboarding.Message(err)))
		}
		st = next
	}
}

func readInput(reader *bufio.Reader, in *os.File, out io.Writer, secret bool) (string, error) {
	fmt.Fprint(out, clifmt.Dim("> "))
	if secret && term.IsTerminal(int(in.Fd())) {
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
