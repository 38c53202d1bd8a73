package main

import (
	"fmt"
	"text/tabwriter"

	"chatsync/internal/core/domain"

	"github.com/spf13/cobra"
)

func newConversationsCmd(a *app) *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.newSession()
			if err != nil {
				return err
			}
			if size <= 0 {
				size = a.cfg.API.PageSize
			}
			entry, err := s.Queries().LoadConversations(cmd.Context(), page, size)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tLAST MESSAGE")
			for _, r := range entry.Records() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID(), r.String("name"), r.String("type"), lastMessage(r))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 0, "page size (default API_PAGE_SIZE)")
	return cmd
}

func lastMessage(r domain.Record) string {
	lm, ok := r["last_message"].(map[string]any)
	if !ok {
		return ""
	}
	return domain.Record(lm).String("text")
}
