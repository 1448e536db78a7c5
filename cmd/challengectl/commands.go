package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/challenge-designer/internal/models"
	"github.com/terra-clan/challenge-designer/pkg/client"
)

const defaultServer = "http://localhost:8080"

type cliOptions struct {
	server  string
	timeout time.Duration
	out     io.Writer
}

func (o *cliOptions) client() *client.Client {
	return client.NewClient(o.server, client.WithTimeout(o.timeout))
}

// print writes v as indented JSON
func (o *cliOptions) print(v interface{}) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newRootCmd(out io.Writer) *cobra.Command {
	server := os.Getenv("CHALLENGE_SERVER")
	if server == "" {
		server = defaultServer
	}
	opts := &cliOptions{out: out}

	root := &cobra.Command{
		Use:   "challengectl",
		Short: "Command-line client for the challenge-designer service",
		Long: `challengectl sends challenge declarations to a running challenge-designer
service and prints the JSON answers.

The server address defaults to $CHALLENGE_SERVER, then ` + defaultServer + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", server, "challenge-designer base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(
		textCmd(opts, "validate", "Check whether a challenge is concrete enough", func(ctx context.Context, c *client.Client, text string) (interface{}, error) {
			return c.Validate(ctx, text)
		}),
		textCmd(opts, "classify", "Assign one of the six categories to a challenge", func(ctx context.Context, c *client.Client, text string) (interface{}, error) {
			return c.Classify(ctx, text)
		}),
		textCmd(opts, "difficulty", "Grade a challenge into difficulty level 1-3", func(ctx context.Context, c *client.Client, text string) (interface{}, error) {
			return c.AssessDifficulty(ctx, text)
		}),
		textCmd(opts, "concretize", "Restate a vague challenge as a SMART goal", func(ctx context.Context, c *client.Client, text string) (interface{}, error) {
			return c.Concretize(ctx, text)
		}),
		textCmd(opts, "suggest", "Suggest a one-line minimal first step", func(ctx context.Context, c *client.Client, text string) (interface{}, error) {
			return c.Suggest(ctx, text)
		}),
		actionCmd(opts),
		coachCmd(opts),
		designCmd(opts),
		healthCmd(opts),
	)

	return root
}

type textCall func(ctx context.Context, c *client.Client, text string) (interface{}, error)

// textCmd builds a command that sends its joined arguments as challenge text
func textCmd(opts *cliOptions, use, short string, call textCall) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <challenge text>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := call(cmd.Context(), opts.client(), joinArgs(args))
			if err != nil {
				return err
			}
			return opts.print(res)
		},
	}
}

func actionCmd(opts *cliOptions) *cobra.Command {
	var req models.InitialActionRequest

	cmd := &cobra.Command{
		Use:   "action <challenge text>",
		Short: "Design an initial action for a known category and difficulty",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Text = joinArgs(args)
			res, err := opts.client().InitialAction(cmd.Context(), req)
			if err != nil {
				return err
			}
			return opts.print(res)
		},
	}

	cmd.Flags().StringVar(&req.Category, "category", "", "category name or Japanese label")
	cmd.Flags().IntVar(&req.DifficultyLevel, "level", 0, "difficulty level 1-3")
	cmd.Flags().IntVar(&req.Seriousness, "seriousness", 0, "seriousness 1-5")

	return cmd
}

func coachCmd(opts *cliOptions) *cobra.Command {
	var req models.CoachRequest

	cmd := &cobra.Command{
		Use:   "coach <goal>",
		Short: "Re-suggest a first step for starting, retrying or getting unstuck",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Goal = joinArgs(args)
			res, err := opts.client().Coach(cmd.Context(), req)
			if err != nil {
				return err
			}
			return opts.print(res)
		},
	}

	cmd.Flags().StringVar(&req.Type, "type", "first", "first, retry or stuck")
	cmd.Flags().StringVar(&req.Situation, "situation", "", "current situation")
	cmd.Flags().StringVar(&req.Fear, "fear", "", "what worries you")

	return cmd
}

func designCmd(opts *cliOptions) *cobra.Command {
	var (
		req    models.DesignRequest
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "design <challenge text>",
		Short: "Run the full design pipeline for a challenge",
		Long: `Run the full design pipeline: concreteness check, classification,
difficulty assessment and initial action design.

With --stream the stage transitions are printed to stderr as they happen.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ChallengeText = joinArgs(args)
			c := opts.client()

			var (
				design *models.ChallengeDesign
				err    error
			)
			if stream {
				design, err = c.StreamDesign(cmd.Context(), req, func(e models.StageEvent) {
					line := string(e.Stage)
					if e.Method != "" {
						line += " (" + string(e.Method) + ")"
					}
					if e.FailedAt != "" {
						line += " at " + string(e.FailedAt)
					}
					fmt.Fprintln(cmd.ErrOrStderr(), line)
				})
			} else {
				design, err = c.Design(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			return opts.print(design)
		},
	}

	cmd.Flags().StringVar(&req.Deadline, "deadline", "", "free-form deadline, e.g. 3ヶ月")
	cmd.Flags().IntVar(&req.Seriousness, "seriousness", 0, "seriousness 1-5")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "why the challenge matters")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream stage transitions over websocket")

	return cmd
}

func healthCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the service is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Health(cmd.Context()); err != nil {
				if client.IsRateLimited(err) {
					return errors.New("rate limited, try again in a minute")
				}
				return err
			}
			fmt.Fprintln(opts.out, "ok")
			return nil
		},
	}
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
