package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskboard/client"
	"taskboard/domain"
	"taskboard/storage"
)

var auditQueue string

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List the boards you can see",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		boards, err := client.NewREST(apiURL, token, "").ListBoards(cmd.Context())
		if err != nil {
			return err
		}
		renderBoards(cmd.OutOrStdout(), boards)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <board-id>",
	Short: "Follow a board live",
	Long: `Loads the board, joins its websocket channel and redraws it on every
change, merging moves made by other users as they arrive.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var moveCardCmd = &cobra.Command{
	Use:   "move-card <card-id> <list-id> <index>",
	Short: "Move a card to index within a list",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseIndex(args[2])
		if err != nil {
			return err
		}
		res, err := client.NewREST(apiURL, token, "").MoveCard(cmd.Context(), args[0], domain.MoveRequest{ListID: args[1], Index: &idx})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s @%g\n", res.Card.ID, res.Card.ListID, res.Card.Position)
		if len(res.Rebalanced) > 0 {
			dimColor.Fprintf(cmd.OutOrStdout(), "re-spaced %d siblings\n", len(res.Rebalanced))
		}
		return nil
	},
}

var moveListCmd = &cobra.Command{
	Use:   "move-list <list-id> <index>",
	Short: "Move a list to index on its board",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		res, err := client.NewREST(apiURL, token, "").MoveList(cmd.Context(), args[0], domain.MoveRequest{Index: &idx})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s @%g\n", res.List.ID, res.List.Position)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Drain the activity export queue",
	Long: `Reads activity records exported by a board-api running with AUDIT_QUEUE
and prints them. Messages are removed from the queue once printed.
Requires STORAGE_CONNECTION_STRING.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			return errors.New("missing STORAGE_CONNECTION_STRING")
		}
		logger := log.New()
		logger.SetOutput(cmd.ErrOrStderr())
		feed, err := storage.NewAuditFeed(connStr, auditQueue, logger)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = feed.Run(ctx, func(a domain.Activity) error {
			renderActivity(cmd.OutOrStdout(), a)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditQueue, "queue", envOr("AUDIT_QUEUE", "board-activity"), "export queue name")
	rootCmd.AddCommand(boardsCmd, watchCmd, moveCardCmd, moveListCmd, auditCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	boardID := args[0]
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sock, err := client.Dial(ctx, wsURL(apiURL), token)
	if err != nil {
		return err
	}
	defer sock.Close()

	logger := log.New()
	logger.SetOutput(cmd.ErrOrStderr())
	rec := client.NewReconciler(client.NewREST(apiURL, token, sock.Session()), boardID, sock.Session(), logger)
	out := cmd.OutOrStdout()
	rec.OnChange(func(v domain.BoardView) {
		fmt.Fprint(out, "\033[H\033[2J")
		renderBoard(out, v)
	})

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() { cancel(rec.Run(ctx)) }()
	err = sock.Follow(ctx, boardID, rec)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return n, nil
}
