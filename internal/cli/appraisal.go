package cli

import (
	"errors"
	"fmt"

	"github.com/curio-market/backend/internal/poller"
	"github.com/curio-market/backend/internal/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// ErrNoResult is returned when waiting ends without a stored result
var ErrNoResult = errors.New("no appraisal result")

func submitCmd(g *globals) *cobra.Command {
	var (
		in   services.SubmitInput
		hist string
		img  string
		wait bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an item for appraisal",
		Long: `Submit an item description for appraisal.

Examples:
  appraise submit --name "Pocket Watch" --category Antiques \
    --description "Silver hunter case, running" --condition Good --agree-terms --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hist != "" {
				in.ItemHistory = &hist
			}
			if img != "" {
				in.ImageURL = &img
			}
			// Rejected locally so nothing is sent for invalid input
			if err := in.Validate(); err != nil {
				return err
			}

			req, err := g.client().Submit(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted %s (%s)\n", bold.Sprint(req.ItemName), req.ID)
			if !wait {
				fmt.Fprintf(out, "Follow it with: appraise watch %s\n", req.ID)
				return nil
			}
			return waitAndRender(cmd, g, req.ID)
		},
	}

	cmd.Flags().StringVar(&in.ItemName, "name", "", "item name (required)")
	cmd.Flags().StringVar(&in.ItemCategory, "category", "", "item category (required)")
	cmd.Flags().StringVar(&in.ItemDescription, "description", "", "item description (required)")
	cmd.Flags().StringVar(&in.ItemCondition, "condition", "", "item condition, e.g. Excellent, Good, Fair (required)")
	cmd.Flags().StringVar(&hist, "history", "", "provenance or history")
	cmd.Flags().StringVar(&img, "image-url", "", "URL of an item photo")
	cmd.Flags().BoolVar(&in.AgreedTerms, "agree-terms", false, "accept the appraisal terms (required)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the result after submitting")

	return cmd
}

func watchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <request-id>",
		Short: "Wait for a request's appraisal result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request id %q: %w", args[0], err)
			}
			return waitAndRender(cmd, g, id)
		},
	}
}

func showCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a request and its result without waiting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request id %q: %w", args[0], err)
			}
			view, err := g.client().GetAppraisal(cmd.Context(), id)
			if err != nil {
				return err
			}
			renderView(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func waitAndRender(cmd *cobra.Command, g *globals, id uuid.UUID) error {
	out := g.poller(cmd).Poll(cmd.Context(), id)

	switch out.State {
	case poller.StateFound:
		renderResult(cmd.OutOrStdout(), out.View, out.Result)
		return nil
	case poller.StateFailed:
		var failed *services.AppraisalFailedError
		if errors.As(out.Err, &failed) {
			return fmt.Errorf("%w: appraisal failed: %s", ErrNoResult, failed.Reason)
		}
		return fmt.Errorf("%w: %v", ErrNoResult, out.Err)
	case poller.StateNotFound:
		return fmt.Errorf("%w: request %s does not exist", ErrNoResult, id)
	default:
		return fmt.Errorf("%w after %d attempts: %v", ErrNoResult, out.Attempts, out.Err)
	}
}
