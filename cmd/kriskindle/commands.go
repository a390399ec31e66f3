package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/kriskindle/internal/client"
	"github.com/mmynk/kriskindle/pkg/api"
	"github.com/mmynk/kriskindle/pkg/logging"
)

const inMemoryCache = ":memory:"

// cli holds the state shared by every subcommand.
type cli struct {
	server   string
	cacheDir string
	logLevel string

	client *client.Client
}

// execute runs the CLI with args and always releases the cache, including
// when a subcommand fails.
func execute(ctx context.Context, args []string, out io.Writer) error {
	c := &cli{}
	rootCmd := newRootCmd(c)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	defer c.close()
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kriskindle",
		Short:         "Secret gift exchange groups from the command line",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open()
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.server, "server", envOr("KRISKINDLE_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&c.cacheDir, "cache-dir", envOr("KRISKINDLE_CACHE_DIR", defaultCacheDir()), "local membership cache directory, or :memory:")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		c.createCmd(),
		c.listCmd(),
		c.showCmd(),
		c.joinCmd(),
		c.wishlistCmd(),
		c.editCmd(),
		c.deleteCmd(),
		c.watchCmd(),
		c.resolveCmd(),
	)
	return rootCmd
}

func (c *cli) open() error {
	logger := logging.Setup(c.logLevel)

	var (
		cache client.Cache
		err   error
	)
	if c.cacheDir == inMemoryCache {
		cache = client.NewMemoryCache()
	} else {
		cache, err = client.OpenBadgerCache(client.BadgerConfig{Path: c.cacheDir, Logger: logger})
		if err != nil {
			return err
		}
	}
	c.client = client.New(c.server, nil, cache, logger)
	return nil
}

func (c *cli) close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Cache().Close()
	c.client = nil
	return err
}

func (c *cli) createCmd() *cobra.Command {
	var (
		budget  float64
		members []string
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a group; the first member is the owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.CreateGroup(cmd.Context(), args[0], budget, members)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created group %q (%s)\n", resp.Group.Name, resp.Group.ID)
			fmt.Fprintf(out, "Owner: %s\n", resp.Group.Owner)
			fmt.Fprintf(out, "Join reference: %s\n", resp.JoinRef)
			return nil
		},
	}
	cmd.Flags().Float64Var(&budget, "budget", 0, "gift budget")
	cmd.Flags().StringSliceVar(&members, "members", nil, "comma-separated member names, owner first")
	_ = cmd.MarkFlagRequired("members")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				groups []*api.Group
				err    error
			)
			if mine {
				groups, err = c.client.MyGroups(cmd.Context())
			} else {
				groups, err = c.client.ListGroups(cmd.Context())
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(out, "No groups.")
				return nil
			}
			for _, g := range groups {
				fmt.Fprintf(out, "%s  %-24s budget %.2f  %d members\n", g.ID, g.Name, g.Budget, len(g.Members))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only groups this device created or joined")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show GROUP",
		Short: "Show a group and, if joined here, your assignee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := client.ResolveGroupID(args[0])
			if err != nil {
				return err
			}
			g, err := c.client.GetGroup(cmd.Context(), groupID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printGroup(out, g)

			m, ok, err := c.client.Cache().Get(groupID)
			if err != nil {
				return err
			}
			if ok && m.Joined {
				assignee, err := c.client.Assignment(cmd.Context(), groupID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nYou are %s.\n", m.Name)
				printAssignee(out, assignee)
			}
			return nil
		},
	}
}

func (c *cli) joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join REF NAME",
		Short: "Join a group by invite reference, link or group ID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.Join(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Joined group %s as %s.\n", resp.GroupID, resp.MemberName)
			printAssignee(out, resp.Assignee)
			return nil
		},
	}
}

func (c *cli) wishlistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wishlist GROUP [ITEM...]",
		Short: "Replace your wishlist; no items clears it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := client.ResolveGroupID(args[0])
			if err != nil {
				return err
			}
			items := args[1:]
			if _, err := c.client.UpdateWishlist(cmd.Context(), groupID, items); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wishlist updated (%d items).\n", len(items))
			return nil
		},
	}
}

func (c *cli) editCmd() *cobra.Command {
	var (
		name   string
		budget float64
	)
	cmd := &cobra.Command{
		Use:   "edit GROUP",
		Short: "Rename a group and set its budget (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := client.ResolveGroupID(args[0])
			if err != nil {
				return err
			}
			g, err := c.client.EditGroup(cmd.Context(), groupID, name, budget)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Group updated: %q, budget %.2f\n", g.Name, g.Budget)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new group name")
	cmd.Flags().Float64Var(&budget, "budget", 0, "new gift budget")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete GROUP",
		Short: "Delete a group (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := client.ResolveGroupID(args[0])
			if err != nil {
				return err
			}
			if err := c.client.DeleteGroup(cmd.Context(), groupID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Group deleted.")
			return nil
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll joined groups and print assignee wishlist changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			poller, err := client.NewPoller(c.client, interval, func(m client.Membership) {
				fmt.Fprintf(out, "[%s] %s\n", time.Now().Format(time.Kitchen), groupLabel(m))
				printAssignee(out, m.Assignee)
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(out, "Watching every %s, Ctrl-C to stop.\n", interval)
			poller.Start(ctx)
			<-ctx.Done()
			poller.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "poll interval")
	return cmd
}

func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve REF",
		Short: "Print the group ID named by an invite reference or link",
		Args:  cobra.ExactArgs(1),
		// Works offline; skip opening the cache.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := client.ResolveGroupID(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), groupID)
			return nil
		},
	}
}

func printGroup(out io.Writer, g *api.Group) {
	fmt.Fprintf(out, "%s (%s)\n", g.Name, g.ID)
	fmt.Fprintf(out, "Budget: %.2f\n", g.Budget)
	fmt.Fprintf(out, "Owner: %s\n", g.Owner)
	fmt.Fprintln(out, "Members:")
	for _, m := range g.Members {
		status := "not joined"
		if m.HasJoined {
			status = "joined"
		}
		fmt.Fprintf(out, "  - %s (%s)", m.Name, status)
		if len(m.Wishlist) > 0 {
			fmt.Fprintf(out, ": %s", strings.Join(m.Wishlist, ", "))
		}
		fmt.Fprintln(out)
	}
}

func printAssignee(out io.Writer, a *api.Assignee) {
	if a == nil {
		return
	}
	fmt.Fprintf(out, "You give a gift to %s.\n", a.Name)
	if len(a.Wishlist) == 0 {
		fmt.Fprintln(out, "Their wishlist is empty.")
		return
	}
	fmt.Fprintf(out, "Their wishlist: %s\n", strings.Join(a.Wishlist, ", "))
}

func groupLabel(m client.Membership) string {
	if m.GroupName != "" {
		return m.GroupName
	}
	return m.GroupID
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", ".kriskindle")
	}
	return filepath.Join(dir, "kriskindle")
}
