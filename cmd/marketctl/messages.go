package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func contactCmd(flags *rootFlags) *cobra.Command {
	var msg string

	cmd := &cobra.Command{
		Use:   "contact <listing-id>",
		Short: "Message the seller of a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listingID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid listing ID %q", args[0])
			}

			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.RequireAuth(); err != nil {
				return signinHint(err)
			}

			sent, err := app.Messages.ContactSeller(cmd.Context(), listingID, msg)
			if err != nil {
				return signinHint(err)
			}

			fmt.Printf("Message sent (conversation %d)\n", sent.Conversation)
			return nil
		},
	}

	cmd.Flags().StringVarP(&msg, "message", "m", "", "Message to send")
	cmd.MarkFlagRequired("message")
	return cmd
}

func messagesCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Read and send marketplace messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConversations(cmd, flags)
		},
	}

	cmd.AddCommand(
		messagesShowCmd(flags),
		messagesSendCmd(flags),
	)
	return cmd
}

func showConversations(cmd *cobra.Command, flags *rootFlags) error {
	app, cleanup, err := loadApp(cmd, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.RequireAuth(); err != nil {
		return signinHint(err)
	}

	conversations, err := app.Messages.Conversations(cmd.Context())
	if err != nil {
		return signinHint(err)
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLISTING\tUNREAD\tLAST MESSAGE")
	for _, c := range conversations {
		last := ""
		if c.LastMessage != nil {
			last = c.LastMessage.Content
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", c.ID, c.Listing, c.UnreadCount, last)
	}
	return w.Flush()
}

func messagesShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show a conversation and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversationID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation ID %q", args[0])
			}

			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.RequireAuth(); err != nil {
				return signinHint(err)
			}

			messages, err := app.Messages.Messages(cmd.Context(), conversationID)
			if err != nil {
				return signinHint(err)
			}

			if len(messages) == 0 {
				fmt.Println("No messages in this conversation")
				return nil
			}

			for _, m := range messages {
				fmt.Printf("[%s] %s: %s\n",
					m.CreatedAt.Format("2006-01-02 15:04"), m.Sender.Username, m.Content)
			}

			if err := app.Messages.MarkRead(cmd.Context(), conversationID); err != nil {
				app.logger.Warn("Failed to mark conversation read", slog.String("error", err.Error()))
			}
			return nil
		},
	}
}

func messagesSendCmd(flags *rootFlags) *cobra.Command {
	var msg string

	cmd := &cobra.Command{
		Use:   "send <conversation-id>",
		Short: "Send a message in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversationID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation ID %q", args[0])
			}

			app, cleanup, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.RequireAuth(); err != nil {
				return signinHint(err)
			}

			if _, err := app.Messages.Send(cmd.Context(), conversationID, msg); err != nil {
				return signinHint(err)
			}

			fmt.Println("Sent")
			return nil
		},
	}

	cmd.Flags().StringVarP(&msg, "message", "m", "", "Message to send")
	cmd.MarkFlagRequired("message")
	return cmd
}
