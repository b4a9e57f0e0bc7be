package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vbonduro/pillpal/internal/imagestore/memory"
	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/session"
)

const (
	cmdReset = "/reset"
	cmdQuit  = "/quit"
)

func newChatCmd(load loader) *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "chat IMAGE",
		Short: "Identify the medication in a photo and ask questions about it",
		Long: `Identify the medication in a photo, then answer questions about it.

Type /reset to start over or /quit to leave.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.cleanup()

			img, err := readImage(a.decoder, args[0])
			if err != nil {
				return err
			}
			r, err := newRenderer(style)
			if err != nil {
				return err
			}

			c := session.NewController(uuid.NewString(), session.Deps{
				Identifier: a.identifier,
				Replier:    a.conversation,
				Images:     memory.New(),
				Prompts:    a.prompts,
				Logger:     a.logger,
			})
			return runChat(cmd.Context(), c, img, r, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&style, "style", "auto", "glamour style: auto, dark, light or notty")
	return cmd
}

// runChat identifies img through c and then relays lines from in as chat
// messages until EOF, /quit or /reset.
func runChat(ctx context.Context, c *session.Controller, img *intake.Image, r *renderer, in io.Reader, out, status io.Writer) error {
	unsubscribe := c.Subscribe(progressPrinter(status))
	defer unsubscribe()

	if err := c.SelectImage(ctx, img); err != nil {
		return err
	}
	outcome, err := c.Identify(ctx)
	if err != nil {
		return err
	}
	state := c.State()
	if outcome != session.OutcomeIdentified {
		fmt.Fprintln(out, state.Error)
		return errNotIdentified
	}

	fmt.Fprint(out, r.Render(medicationMarkdown(state.Medication)))
	for _, msg := range state.Transcript {
		fmt.Fprint(out, r.Render(msg.Content))
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdReset:
			c.Reset(ctx)
			fmt.Fprintln(out, "Session reset.")
			return nil
		}

		reply, err := c.Send(ctx, line)
		switch {
		case errors.Is(err, session.ErrEmptyMessage):
			continue
		case err != nil:
			return err
		}
		fmt.Fprint(out, r.Render(reply.Content))
	}
}

// progressPrinter reports when a request starts.
func progressPrinter(w io.Writer) func(session.State) {
	var loading, chatting bool
	return func(s session.State) {
		if s.Loading && !loading {
			fmt.Fprintln(w, "Analyzing image...")
		}
		if s.Chatting && !chatting {
			fmt.Fprintln(w, "Thinking...")
		}
		loading, chatting = s.Loading, s.Chatting
	}
}
