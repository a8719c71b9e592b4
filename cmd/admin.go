package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/subgate/internal/cache"
	"github.com/nextlevelbuilder/subgate/internal/registry"
	"github.com/nextlevelbuilder/subgate/internal/store"
)

// adminEnv is what registry commands run against.
type adminEnv struct {
	registry   *registry.Registry
	activation *cache.ActivationSwitch
}

// withRegistry opens stores and cache for the duration of one command.
func withRegistry(fn func(ctx context.Context, env adminEnv) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	kv, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	return fn(ctx, adminEnv{
		registry:   registry.New(stores),
		activation: newActivationSwitch(kv, stores, cfg),
	})
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return id, nil
}

func printChats(chats []store.MonitoredChat) {
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	fmt.Printf("%-6s %-16s %-8s %-6s %s\n", "ID", "CHAT ID", "KIND", "OWNER", "TITLE")
	for _, c := range chats {
		fmt.Printf("%-6d %-16d %-8s %-6d %s\n", c.ID, c.ChatID, c.Kind, c.OwnerID, c.Title)
	}
}

// --- chats ---

func chatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage monitored groups and required channels",
	}
	cmd.AddCommand(chatsAddCmd())
	cmd.AddCommand(chatsListCmd())
	cmd.AddCommand(chatsDeleteCmd())
	return cmd
}

func chatsAddCmd() *cobra.Command {
	var owner int64
	var kind string
	cmd := &cobra.Command{
		Use:   "add <telegram chat id> <title>",
		Short: "Register a group or channel for an owner",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID(args[0], "chat id")
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				c, err := env.registry.AddChat(ctx, owner, chatID, title, store.ChatKind(kind))
				if err != nil {
					return err
				}
				fmt.Printf("Added %s %q (id %d)\n", c.Kind, c.Title, c.ID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "owner user id (required)")
	cmd.Flags().StringVar(&kind, "kind", string(store.ChatKindGroup), "chat kind: group or channel")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func chatsListCmd() *cobra.Command {
	var owner int64
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				chats, err := env.registry.Chats(ctx, owner, store.ChatKind(kind))
				if err != nil {
					return err
				}
				printChats(chats)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "filter by owner user id")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind: group or channel")
	return cmd
}

func chatsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a chat and every link that mentions it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "id")
			if err != nil {
				return err
			}
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				c, err := env.registry.RemoveChat(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %s %q\n", c.Kind, c.Title)
				return nil
			})
		},
	}
}

// --- links ---

func linksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Manage which chats a group requires",
	}
	cmd.AddCommand(linksAddCmd())
	cmd.AddCommand(linksRemoveCmd())
	cmd.AddCommand(linksListCmd())
	cmd.AddCommand(linksLinkableCmd())
	return cmd
}

func linkArgs(args []string) (target, required int64, err error) {
	if target, err = parseID(args[0], "target id"); err != nil {
		return 0, 0, err
	}
	if required, err = parseID(args[1], "required id"); err != nil {
		return 0, 0, err
	}
	return target, required, nil
}

func linksAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <target group id> <required chat id>",
		Short: "Require subscription to a chat before posting in a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, required, err := linkArgs(args)
			if err != nil {
				return err
			}
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				l, err := env.registry.Link(ctx, target, required)
				if err != nil {
					return err
				}
				fmt.Printf("Linked %d -> %d (link %d)\n", l.TargetID, l.RequiredID, l.ID)
				return nil
			})
		},
	}
}

func linksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <target group id> <required chat id>",
		Short: "Drop a requirement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, required, err := linkArgs(args)
			if err != nil {
				return err
			}
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				if err := env.registry.Unlink(ctx, target, required); err != nil {
					return err
				}
				fmt.Printf("Unlinked %d -> %d\n", target, required)
				return nil
			})
		},
	}
}

func linksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <target group id>",
		Short: "List the chats a group requires, in check order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseID(args[0], "target id")
			if err != nil {
				return err
			}
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				chats, err := env.registry.RequiredChats(ctx, target)
				if err != nil {
					return err
				}
				printChats(chats)
				return nil
			})
		},
	}
}

func linksLinkableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "linkable <target group id>",
		Short: "List the owner's chats that could still be required",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseID(args[0], "target id")
			if err != nil {
				return err
			}
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				chats, err := env.registry.LinkableChats(ctx, target)
				if err != nil {
					return err
				}
				printChats(chats)
				return nil
			})
		},
	}
}

// --- users ---

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage chat owners",
	}
	cmd.AddCommand(usersAddCmd())
	cmd.AddCommand(usersListCmd())
	cmd.AddCommand(usersSetActiveCmd("activate", true))
	cmd.AddCommand(usersSetActiveCmd("deactivate", false))
	return cmd
}

func usersAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <telegram user id> [username]",
		Short: "Register an owner (same as the user sending /start)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			username := ""
			if len(args) == 2 {
				username = strings.TrimPrefix(args[1], "@")
			}
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				u, created, err := env.registry.RegisterUser(ctx, chatID, username)
				if err != nil {
					return err
				}
				if !created {
					fmt.Printf("User already registered (id %d)\n", u.ID)
					return nil
				}
				fmt.Printf("Registered user %d\n", u.ID)
				return nil
			})
		},
	}
}

func usersListCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				users, count, err := env.registry.ListUsers(ctx, page, limit)
				if err != nil {
					return err
				}
				fmt.Printf("%-6s %-14s %-7s %-12s %s\n", "ID", "TELEGRAM ID", "ACTIVE", "ROLES", "USERNAME")
				for _, u := range users {
					fmt.Printf("%-6d %-14d %-7v %-12s %s\n", u.ID, u.ChatID, u.Active, strings.Join(u.Roles, ","), u.Username)
				}
				fmt.Printf("\npage %d of %d (%d users)\n", page, store.TotalPages(count, limit), count)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number (1-based)")
	cmd.Flags().IntVar(&limit, "limit", 20, "users per page")
	return cmd
}

func usersSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Set an owner's gate switch to %v", active),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "id")
			if err != nil {
				return err
			}
			return withRegistry(func(ctx context.Context, env adminEnv) error {
				u, err := env.activation.SetActive(ctx, id, active)
				if err != nil {
					return err
				}
				fmt.Printf("User %d active=%v\n", u.ID, u.Active)
				return nil
			})
		},
	}
}
