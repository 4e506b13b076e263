package main

import (
	"fmt"
	"os"

	letschat "github.com/letschat-im/letschat/sdk/golang"
)

// getAnonClient creates an unauthenticated client, for login and register.
func getAnonClient() *letschat.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var opts []letschat.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, letschat.WithBaseURL(cfg.Default.BaseURL))
	}
	return letschat.NewClient("", opts...)
}

// getClient creates a client authenticated with the stored token.
func getClient() *letschat.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not signed in. Run 'letschat login <email> <password>' first.")
		os.Exit(1)
	}

	var opts []letschat.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, letschat.WithBaseURL(cfg.Default.BaseURL))
	}
	return letschat.NewClient(cfg.Auth.Token, opts...)
}

// getSession builds a session from the stored identity.
func getSession() *letschat.Session {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.UserID == "" {
		fmt.Fprintln(os.Stderr, "Not signed in. Run 'letschat login <email> <password>' first.")
		os.Exit(1)
	}
	return letschat.NewSession(&letschat.User{
		ID:    cfg.Auth.UserID,
		Name:  cfg.Auth.UserName,
		Email: cfg.Auth.UserEmail,
		Token: cfg.Auth.Token,
	})
}

// buildStore wires a store for one-shot commands. The realtime client stays
// unconnected; room joins are best-effort and skipped when offline.
func buildStore(client *letschat.Client, session *letschat.Session) (*letschat.Store, *letschat.RealtimeClient) {
	rt := client.Realtime(&letschat.RealtimeConfig{
		Token: session.CurrentUser().Token,
	})

	var mirror *letschat.SelectionMirror
	if path, err := letschat.DefaultMirrorPath(); err == nil {
		mirror = letschat.NewSelectionMirror(path)
	}

	store := letschat.NewStore(client, rt, session, mirror)
	store.Bind(rt)
	return store, rt
}
