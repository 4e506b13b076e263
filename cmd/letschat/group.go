package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	letschat "github.com/letschat-im/letschat/sdk/golang"
	"github.com/spf13/cobra"
)

var groupCreateUsers string

func init() {
	groupCreateCmd.Flags().StringVar(&groupCreateUsers, "users", "", "Comma-separated user ids (at least 2)")

	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupRenameCmd)
	groupCmd.AddCommand(groupAddCmd)
	groupCmd.AddCommand(groupRemoveCmd)
	groupCmd.AddCommand(groupLinkCmd)
	groupCmd.AddCommand(groupJoinCmd)

	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(openCmd)
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Group chat management",
}

// ============================================================================
// open (direct chat)
// ============================================================================

var openCmd = &cobra.Command{
	Use:   "open <user-id>",
	Short: "Open (or create) a direct chat with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		chat, err := client.AccessChat(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Chat %s ready.\n", chat.ID)
		return nil
	},
}

// ============================================================================
// group create / rename / add / remove
// ============================================================================

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users := strings.Split(groupCreateUsers, ",")
		if groupCreateUsers == "" || len(users) < 2 {
			return fmt.Errorf("at least 2 user ids are required (--users id1,id2)")
		}

		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		chat, err := client.CreateGroup(ctx, &letschat.CreateGroupOptions{
			Name:    args[0],
			UserIDs: users,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Created group %s (%s)\n", chat.Name, chat.ID)
		return nil
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <chat-id> <name>",
	Short: "Rename a group chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		chat, err := client.RenameGroup(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Group renamed to %s\n", chat.Name)
		return nil
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add <chat-id> <user-id>",
	Short: "Add a user to a group chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if _, err := client.AddToGroup(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("User added.")
		return nil
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <chat-id> <user-id>",
	Short: "Remove a user from a group chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if _, err := client.RemoveFromGroup(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("User removed.")
		return nil
	},
}

// ============================================================================
// group link / join
// ============================================================================

var groupLinkCmd = &cobra.Command{
	Use:   "link <chat-id>",
	Short: "Generate a shareable join link for a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		link, err := client.GenerateJoinLink(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println(link.Link)
		return nil
	},
}

var groupJoinCmd = &cobra.Command{
	Use:   "join <chat-id>",
	Short: "Join a group chat via its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		chat, err := client.JoinGroup(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Joined %s (%s)\n", chat.Name, chat.ID)
		return nil
	},
}
