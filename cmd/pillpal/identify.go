package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/session"
)

var errNotIdentified = errors.New("medication not identified")

type identifyResult struct {
	Status     string             `json:"status"`
	Medication *domain.Medication `json:"medication,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func newIdentifyCmd(load loader) *cobra.Command {
	var (
		asJSON bool
		style  string
	)

	cmd := &cobra.Command{
		Use:   "identify IMAGE",
		Short: "Identify the medication in a photo",
		Args:  cobra.ExactArgs(1),
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

			var r *renderer
			if !asJSON {
				if r, err = newRenderer(style); err != nil {
					return err
				}
			}
			return runIdentify(cmd.Context(), a, img, r, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&style, "style", "auto", "glamour style: auto, dark, light or notty")
	return cmd
}

// runIdentify writes the outcome to out, as JSON when r is nil. Anything
// other than a confident identification is reported as errNotIdentified.
func runIdentify(ctx context.Context, a *app, img *intake.Image, r *renderer, out io.Writer) error {
	med, err := a.identifier.Identify(ctx, img)

	var result identifyResult
	switch {
	case err != nil:
		a.logger.Error("identification failed", "error", err)
		result = identifyResult{Status: session.OutcomeFailed.String(), Error: a.prompts.Messages.Failed}
	case med.IsUnknown():
		result = identifyResult{Status: session.OutcomeUnknown.String(), Error: a.prompts.Messages.Unknown}
	default:
		result = identifyResult{Status: session.OutcomeIdentified.String(), Medication: med}
	}

	if r == nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if result.Medication != nil {
		fmt.Fprint(out, r.Render(medicationMarkdown(result.Medication)))
	} else {
		fmt.Fprintln(out, result.Error)
	}

	if result.Medication == nil {
		return errNotIdentified
	}
	return nil
}

func readImage(decoder *intake.Decoder, path string) (*intake.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, err := decoder.Decode(data, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
