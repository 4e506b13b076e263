package main

import (
	"context"
	"fmt"
	"time"

	letschat "github.com/letschat-im/letschat/sdk/golang"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

// saveIdentity stores a signed-in user in the config file.
func saveIdentity(user *letschat.User) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Auth.Token = user.Token
	cfg.Auth.UserID = user.ID
	cfg.Auth.UserName = user.Name
	cfg.Auth.UserEmail = user.Email
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

var loginCmd = &cobra.Command{
	Use:   "login <email> <password>",
	Short: "Sign in and store the session token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getAnonClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		user, err := client.Login(ctx, &letschat.LoginOptions{
			Email:    args[0],
			Password: args[1],
		})
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		if err := saveIdentity(user); err != nil {
			return err
		}
		fmt.Printf("Signed in as %s <%s>\n", user.Name, user.Email)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <name> <email> <password>",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getAnonClient()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		user, err := client.Register(ctx, &letschat.RegisterOptions{
			Name:     args[0],
			Email:    args[1],
			Password: args[2],
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		if err := saveIdentity(user); err != nil {
			return err
		}
		fmt.Printf("Registered and signed in as %s <%s>\n", user.Name, user.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		if path, err := letschat.DefaultMirrorPath(); err == nil {
			_ = letschat.NewSelectionMirror(path).Clear()
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Auth.UserID == "" {
			fmt.Println("Not signed in.")
			return nil
		}
		fmt.Printf("User ID: %s\n", cfg.Auth.UserID)
		fmt.Printf("Name:    %s\n", cfg.Auth.UserName)
		fmt.Printf("Email:   %s\n", cfg.Auth.UserEmail)
		return nil
	},
}
