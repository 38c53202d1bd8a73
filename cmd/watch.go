package main

import (
	"context"
	"fmt"
	"time"

	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		conversations []string
		duration      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print every push event",
		Long:  "watch opens the push connection, preloads the conversation list and any --conversation timelines, then prints each event and connection change until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			s, err := a.newSession()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			s.OnStateChange(func(st domain.ConnState) {
				fmt.Fprintf(out, "state\t%s\n", st)
			})
			s.SubscribeAll(func(_ context.Context, ev domain.PushEvent) {
				fmt.Fprintf(out, "event\t%s\t%s\n", ev.Kind, ev.Data)
			})
			if err := s.Init(ctx); err != nil {
				return err
			}
			defer func() {
				if err := s.Teardown(); err != nil {
					a.log.Warn("cli - watch - teardown", logging.Err(err))
				}
			}()

			q := s.Queries()
			if _, err := q.LoadConversations(ctx, 1, a.cfg.API.PageSize); err != nil {
				a.log.Warn("cli - watch - preload conversations failed", logging.Err(err))
			}
			for _, id := range conversations {
				if _, err := q.LoadMessages(ctx, id, a.cfg.API.MessagesLimit); err != nil {
					a.log.Warn("cli - watch - preload timeline failed", logging.Conversation(id), logging.Err(err))
				}
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&conversations, "conversation", "c", nil, "preload the timeline of this conversation (repeatable)")
	cmd.Flags().DurationVar(&duration, "for", 0, "exit after this long (0 runs until interrupted)")
	return cmd
}
