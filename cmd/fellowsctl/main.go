package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/config"
	"github.com/jmerrifield20/fellows/internal/database"
	"github.com/jmerrifield20/fellows/internal/email"
	"github.com/jmerrifield20/fellows/internal/posts"
	"github.com/jmerrifield20/fellows/internal/store"
	"github.com/jmerrifield20/fellows/internal/tokens"
	"github.com/jmerrifield20/fellows/internal/users"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fellowsctl",
	Short: "Administer the fellows membership backend",
	Long: `fellowsctl performs the administrative tasks that have no API:
approving registrations, managing the store catalog, granting points,
purging expired tokens and publishing posts.

It reads the same configuration as the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
		if verbose {
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			logger = l
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/fellows.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log service activity to stderr")

	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(pointsCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(versionCmd)
}

// connect opens the pool for one command. The caller closes it.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	db, err := database.Connect(ctx, cfg.Database.URL, 2)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return db, nil
}

func userService(db *pgxpool.Pool) *users.Service {
	// Approval never notifies managers.
	return users.NewService(users.NewRepository(db), email.NewNoopSender(logger), nil, logger)
}

// describe renders service errors for a terminal.
func describe(err error) error {
	var ve *apierr.ValidationError
	if errors.As(err, &ve) {
		b, _ := json.Marshal(ve.Fields)
		return fmt.Errorf("invalid input: %s", b)
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return errors.New(ae.Message)
	}
	if errors.Is(err, users.ErrNotFound) {
		return errors.New("no account with that email")
	}
	return err
}

// ── approve / pending ─────────────────────────────────────────────────────────

var approveCmd = &cobra.Command{
	Use:   "approve <email> [email...]",
	Short: "Activate pending accounts so they can log in",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := userService(db)
		for _, addr := range args {
			if err := svc.Approve(ctx, addr); err != nil {
				return fmt.Errorf("approve %s: %w", addr, describe(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s\n", addr)
		}
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List accounts waiting for approval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		accounts, err := userService(db).ListPending(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tJOINED")
		for _, a := range accounts {
			fmt.Fprintf(w, "%d\t%s\t%s\n", a.ID, a.Email, a.DateJoined.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

// ── items ─────────────────────────────────────────────────────────────────────

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage the store catalog",
}

var newItem store.NewItem

var itemsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an active item to the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		it, err := store.NewService(store.NewRepository(db), logger).AddItem(ctx, newItem)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added item %d %q (%d points)\n", it.ID, it.Name, it.Points)
		return nil
	},
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every store item, including inactive ones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := store.NewService(store.NewRepository(db), logger).ListAllItems(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPOINTS\tACTIVE")
		for _, it := range items {
			fmt.Fprintf(w, "%d\t%s\t%d\t%t\n", it.ID, it.Name, it.Points, it.Active)
		}
		return w.Flush()
	},
}

func init() {
	itemsAddCmd.Flags().StringVar(&newItem.Name, "name", "", "unique item name (required)")
	itemsAddCmd.Flags().StringVar(&newItem.Description, "description", "", "item description (required)")
	itemsAddCmd.Flags().StringVar(&newItem.PreviewImage, "preview", "", "preview image reference")
	itemsAddCmd.Flags().IntVar(&newItem.Points, "points", 0, "price in points")
	_ = itemsAddCmd.MarkFlagRequired("name")
	_ = itemsAddCmd.MarkFlagRequired("description")

	itemsCmd.AddCommand(itemsAddCmd)
	itemsCmd.AddCommand(itemsListCmd)
}

// ── points ────────────────────────────────────────────────────────────────────

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Manage member point balances",
}

var pointsGrantCmd = &cobra.Command{
	Use:   "grant <email> <points>",
	Short: "Add points to a member's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("points must be an integer: %w", err)
		}
		ctx := cmd.Context()
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		balance, err := userService(db).GrantPoints(ctx, args[0], n)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d points\n", args[0], balance)
		return nil
	},
}

func init() {
	pointsCmd.AddCommand(pointsGrantCmd)
}

// ── tokens ────────────────────────────────────────────────────────────────────

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage API tokens",
}

var tokensPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete tokens past their absolute lifespan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		s := tokens.NewStore(tokens.NewRepository(db), tokens.Config{
			IdleLifespan:     cfg.Tokens.IdleLifespan,
			ExpiringLifespan: cfg.Tokens.ExpiringLifespan,
			EnforceIdle:      cfg.Tokens.EnforceIdle,
		}, logger)
		n, err := s.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired token(s)\n", n)
		return nil
	},
}

func init() {
	tokensCmd.AddCommand(tokensPurgeCmd)
}

// ── posts ─────────────────────────────────────────────────────────────────────

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Manage the content feed",
}

var (
	newPost         posts.NewPost
	postContentFile string
)

var postsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Publish a post from a markdown file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(postContentFile)
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		in := newPost
		in.Content = string(content)

		ctx := cmd.Context()
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		p, err := posts.NewService(posts.NewRepository(db), logger).Create(ctx, in)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published post %d %q\n", p.ID, p.Title)
		return nil
	},
}

func init() {
	postsAddCmd.Flags().StringVar(&newPost.Title, "title", "", "post title (required)")
	postsAddCmd.Flags().StringVar(&newPost.Description, "description", "", "short description shown in the feed")
	postsAddCmd.Flags().StringVar(&newPost.Preview, "preview", "", "preview image reference")
	postsAddCmd.Flags().StringSliceVar(&newPost.Tags, "tag", nil, "tag, repeatable or comma separated")
	postsAddCmd.Flags().StringVar(&postContentFile, "content", "", "markdown file with the post body (required)")
	_ = postsAddCmd.MarkFlagRequired("title")
	_ = postsAddCmd.MarkFlagRequired("content")

	postsCmd.AddCommand(postsAddCmd)
}

// ── version ───────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fellowsctl version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "fellowsctl", version)
	},
}
