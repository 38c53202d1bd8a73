package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatsync/internal/core/domain"
	"chatsync/pkg/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		direct  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <text>...",
		Short: "Send one message over the push connection",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			s, err := a.newSession()
			if err != nil {
				return err
			}
			if err := s.Init(ctx); err != nil {
				return err
			}
			defer func() {
				if err := s.Teardown(); err != nil {
					a.log.Warn("cli - send - teardown", logging.Err(err))
				}
			}()
			if err := s.WaitOpen(ctx); err != nil {
				return err
			}

			kind := domain.KindGroupMessage
			if direct {
				kind = domain.KindDirectMessage
			}
			payload := domain.ChatMessagePayload{
				Content:        strings.Join(args[1:], " "),
				ConversationID: args[0],
				ClientMsgID:    newClientMsgID(),
			}
			s.Send(kind, payload)
			if err := s.Flush(ctx); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload.ClientMsgID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "send as a direct message")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "give up if the connection is not open by then")
	return cmd
}

func newClientMsgID() string {
	return uuid.NewString()
}
