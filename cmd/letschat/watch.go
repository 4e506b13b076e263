package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	letschat "github.com/letschat-im/letschat/sdk/golang"
	"github.com/spf13/cobra"
)

var watchChatID string

func init() {
	watchCmd.Flags().StringVar(&watchChatID, "chat", "", "Chat id to activate while watching")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live updates until interrupted",
	Long:  "Connect to the push channel, keep the local state in sync, and print chats, messages, and notifications as they arrive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		session := getSession()
		store, rt := buildStore(client, session)
		selfID := session.CurrentUserID()

		store.On(letschat.StoreEventNotification, func(event string, payload any) {
			note, ok := payload.(*letschat.Notification)
			if !ok {
				return
			}
			sender := note.Message.Sender.Name
			fmt.Printf("* %s: %s\n", sender, note.Message.Content)
		})
		store.On(letschat.StoreEventMessages, func(event string, payload any) {
			msgs, ok := payload.([]*letschat.Message)
			if !ok || len(msgs) == 0 {
				return
			}
			last := msgs[len(msgs)-1]
			sender := last.Sender.Name
			if last.Sender.ID == selfID {
				sender = "You"
			}
			fmt.Printf("[%s] %s: %s\n", letschat.FormatMessageTime(last.CreatedAt), sender, last.Content)
		})
		store.On(letschat.StoreEventTransport, func(event string, payload any) {
			if err, ok := payload.(error); ok && err != nil {
				fmt.Fprintf(os.Stderr, "transport: %v\n", err)
				return
			}
			fmt.Fprintln(os.Stderr, "transport: connected")
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		if err := rt.Connect(ctx); err != nil {
			cancel()
			return fmt.Errorf("connect failed: %w", err)
		}
		cancel()

		ctx, cancel = context.WithTimeout(context.Background(), 20*time.Second)
		err := store.LoadChats(ctx)
		if err == nil && watchChatID != "" {
			err = store.SelectChat(ctx, watchChatID)
		}
		cancel()
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		fmt.Println("Watching. Press Ctrl-C to stop.")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		return rt.Disconnect()
	},
}
