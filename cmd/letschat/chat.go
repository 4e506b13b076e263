package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	letschat "github.com/letschat-im/letschat/sdk/golang"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	chatsJSON bool

	messagesJSON  bool
	messagesLimit int

	sendViewOnce bool
	sendFile     bool
	sendFileName string

	searchJSON bool
)

func init() {
	chatsCmd.Flags().BoolVar(&chatsJSON, "json", false, "Output raw JSON")
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "Output raw JSON")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 0, "Show only the last N messages")
	sendCmd.Flags().BoolVar(&sendViewOnce, "view-once", false, "Mark the message view-once")
	sendCmd.Flags().BoolVar(&sendFile, "file", false, "Content is a file URL")
	sendCmd.Flags().StringVar(&sendFileName, "file-name", "", "Display name for the file")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output raw JSON")

	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(deleteMessageCmd)
	rootCmd.AddCommand(deleteChatCmd)
	rootCmd.AddCommand(searchCmd)
}

// ============================================================================
// chats
// ============================================================================

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats, most recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		session := getSession()
		store, _ := buildStore(client, session)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := store.LoadChats(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		chats := store.Chats()
		if chatsJSON {
			data, err := json.MarshalIndent(chats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(chats) == 0 {
			fmt.Println("No chats yet.")
			return nil
		}

		selfID := session.CurrentUserID()
		for _, chat := range chats {
			name := letschat.ChatDisplayName(chat, selfID)
			badge := ""
			if chat.UnreadCount > 0 {
				badge = fmt.Sprintf(" (%d unread)", chat.UnreadCount)
			}
			fmt.Printf("%s  %s%s\n", chat.ID, name, badge)
			if preview := letschat.LastMessagePreview(chat, selfID); preview != "" {
				fmt.Printf("    %s\n", preview)
			}
		}
		return nil
	},
}

// ============================================================================
// messages
// ============================================================================

var messagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Show a chat's messages and mark it active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		session := getSession()
		store, _ := buildStore(client, session)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := store.LoadChats(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if err := store.SelectChat(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		msgs := store.Messages()
		if messagesLimit > 0 && len(msgs) > messagesLimit {
			msgs = msgs[len(msgs)-messagesLimit:]
		}

		if messagesJSON {
			data, err := json.MarshalIndent(msgs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(msgs) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}

		printMessages(store, msgs, session.CurrentUserID())
		return nil
	},
}

// printMessages renders a message list grouped under date headings.
func printMessages(store *letschat.Store, msgs []*letschat.Message, selfID string) {
	now := time.Now()
	heading := ""
	for _, m := range msgs {
		if h := letschat.FormatDateHeading(m.CreatedAt, now); h != heading {
			heading = h
			fmt.Printf("--- %s ---\n", heading)
		}

		sender := m.Sender.Name
		if m.Sender.ID == selfID {
			sender = "You"
		}

		content := m.Content
		switch {
		case m.ViewOnce && store.IsContentHidden(m.Key()):
			content = "[view-once message hidden]"
		case m.IsFile:
			name := m.FileName
			if name == "" {
				name = m.Content
			}
			content = letschat.FileIcon(name) + " " + name
		}

		marker := ""
		switch m.Status {
		case letschat.StatusPending:
			marker = " [sending]"
		case letschat.StatusFailed:
			marker = " [failed]"
		}

		fmt.Printf("[%s] %s: %s%s\n", letschat.FormatMessageTime(m.CreatedAt), sender, content, marker)
	}
}

// ============================================================================
// send
// ============================================================================

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <content>",
	Short: "Send a message to a chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		session := getSession()
		store, _ := buildStore(client, session)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := store.LoadChats(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if err := store.SelectChat(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		msg, err := store.SendMessage(ctx, &letschat.SendMessageOptions{
			Content:  args[1],
			IsFile:   sendFile,
			FileName: sendFileName,
			ViewOnce: sendViewOnce,
		})
		if err != nil {
			return fmt.Errorf("send failed: %w", err)
		}

		fmt.Printf("Sent message %s\n", msg.ID)
		return nil
	},
}

// ============================================================================
// delete-message / delete-chat
// ============================================================================

var deleteMessageCmd = &cobra.Command{
	Use:   "delete-message <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		session := getSession()
		store, _ := buildStore(client, session)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := store.DeleteMessage(ctx, args[0]); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Println("Message deleted.")
		return nil
	},
}

var deleteChatCmd = &cobra.Command{
	Use:   "delete-chat <chat-id>",
	Short: "Delete a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		session := getSession()
		store, _ := buildStore(client, session)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := store.LoadChats(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if err := store.DeleteChat(ctx, args[0]); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Println("Chat deleted.")
		return nil
	},
}

// ============================================================================
// search
// ============================================================================

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search users by name or email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		users, err := client.SearchUsers(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if searchJSON {
			data, err := json.MarshalIndent(users, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(users) == 0 {
			fmt.Println("No users found.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%s  %s <%s>\n", u.ID, u.Name, u.Email)
		}
		return nil
	},
}
