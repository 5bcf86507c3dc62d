package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "fintank/internal/cli"
	"fintank/internal/config"
	"fintank/internal/money"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "fin",
		Short:        "Fintank ocean client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newStatusCmd(&apiBase),
		newOceanCmd(&apiBase),
		newFishCmd(&apiBase),
		newSpawnCmd(&apiBase),
		newFeedCmd(&apiBase),
		newMarkCmd(&apiBase),
		newHuntCmd(&apiBase),
		newExitCmd(&apiBase),
		newResurrectCmd(&apiBase),
		newTransferCmd(&apiBase),
		newDepositCmd(&apiBase),
		newWithdrawCmd(&apiBase),
		newLedgerCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func requireSession() (cl.Session, error) {
	session, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("not logged in; run `fin login` first")
	}
	return session, nil
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with a wallet signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := promptRequired("Wallet address")
			if err != nil {
				return err
			}

			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			challenge, err := client.Challenge(ctx, address)
			if err != nil {
				return err
			}
			printHeader("Sign this challenge with your wallet:")
			fmt.Println("  " + challenge)
			signature, err := promptSecret("Signature")
			if err != nil {
				return err
			}

			session, err := client.Verify(ctx, address, signature)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Address:      session.User.Address,
				UserID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Logged in as " + session.User.ID)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newStatusCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show balance and your fish",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			balance, err := client.Balance(ctx, session.AccessToken)
			if err != nil {
				return err
			}
			printHeader("Balance")
			neutral.Printf("  total      %s pearls\n", money.FormatPearl(balance.BalanceNanos))
			neutral.Printf("  spendable  %s pearls\n", money.FormatPearl(balance.SpendableNanos))
			fmt.Println()

			fish, err := client.ListFish(ctx, session.AccessToken, "me")
			if err != nil {
				return err
			}
			printHeader("Your fish")
			renderFishList(fish)
			return nil
		},
	}
}

func newOceanCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ocean",
		Short: "Show the pool state",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			view, err := newClient(apiBase).Ocean(ctx, session.AccessToken)
			if err != nil {
				return err
			}
			renderOcean(view)
			return nil
		},
	}
}

func newFishCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fish",
		Short: "Inspect fish",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <fish-id>",
			Short: "Show one fish",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				session, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				fish, err := newClient(apiBase).GetFish(ctx, session.AccessToken, args[0])
				if err != nil {
					return err
				}
				renderFish(fish)
				return nil
			},
		},
		&cobra.Command{
			Use:   "events <fish-id>",
			Short: "Show a fish's history",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				session, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				events, err := newClient(apiBase).FishEvents(ctx, session.AccessToken, args[0])
				if err != nil {
					return err
				}
				renderEvents(events)
				return nil
			},
		},
	)
	return cmd
}

func newSpawnCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "spawn",
		Short: "Create a fish with a deposit",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			name, err := promptRequired("Fish name")
			if err != nil {
				return err
			}
			amount, err := promptPearls("Deposit (pearls)")
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			fish, err := newClient(apiBase).Spawn(ctx, session.AccessToken, name, amount)
			if err != nil {
				return err
			}
			printSuccess("Spawned " + fish.Name)
			renderFish(fish)
			return nil
		},
	}
}

func newFeedCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "feed <fish-id>",
		Short: "Feed a fish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			amount, err := promptPearls("Amount (pearls)")
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			current, err := client.GetFish(ctx, session.AccessToken, args[0])
			if err != nil {
				return err
			}
			fish, err := client.Feed(ctx, session.AccessToken, args[0], current.Version, amount)
			if err != nil {
				return err
			}
			printSuccess("Fed " + fish.Name)
			renderFish(fish)
			return nil
		},
	}
}

func newMarkCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <hunter-id> <prey-id>",
		Short: "Mark a prey for exclusive hunting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			hunter, err := client.GetFish(ctx, session.AccessToken, args[0])
			if err != nil {
				return err
			}
			prey, err := client.GetFish(ctx, session.AccessToken, args[1])
			if err != nil {
				return err
			}
			result, err := client.Mark(ctx, session.AccessToken, args[0], hunter.Version, args[1], prey.Version)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Marked %s for %s pearls; exclusive until %s",
				result.Prey.Name, money.FormatPearl(result.CostNanos),
				result.MarkExpiresAt.Local().Format(time.RFC822)))
			return nil
		},
	}
}

func newHuntCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hunt <hunter-id> <prey-id>",
		Short: "Hunt a hungry or marked prey",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			hunter, err := client.GetFish(ctx, session.AccessToken, args[0])
			if err != nil {
				return err
			}
			prey, err := client.GetFish(ctx, session.AccessToken, args[1])
			if err != nil {
				return err
			}
			result, err := client.Hunt(ctx, session.AccessToken, args[0], hunter.Version, args[1], prey.Version)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s devoured %s for %s pearls",
				result.Hunter.Name, result.Prey.Name, money.FormatPearl(result.ReceivedNanos)))
			renderFish(result.Hunter)
			return nil
		},
	}
}

func newExitCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "exit <fish-id>",
		Short: "Cash a fish out of the ocean",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			current, err := client.GetFish(ctx, session.AccessToken, args[0])
			if err != nil {
				return err
			}
			result, err := client.Exit(ctx, session.AccessToken, args[0], current.Version)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s exited with %s pearls (fee %s)",
				result.Fish.Name, money.FormatPearl(result.PayoutNanos), money.FormatPearl(result.FeeNanos)))
			return nil
		},
	}
}

func newResurrectCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resurrect <dead-fish-id>",
		Short: "Bring a dead fish back as a new one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			name, err := promptRequired("New fish name")
			if err != nil {
				return err
			}
			amount, err := promptPearls("Deposit (pearls)")
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			fish, err := newClient(apiBase).Resurrect(ctx, session.AccessToken, args[0], name, amount)
			if err != nil {
				return err
			}
			printSuccess("Resurrected as " + fish.Name)
			renderFish(fish)
			return nil
		},
	}
}

func newTransferCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <fish-id> <new-owner-id>",
		Short: "Give a fish to another user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			current, err := client.GetFish(ctx, session.AccessToken, args[0])
			if err != nil {
				return err
			}
			fish, err := client.Transfer(ctx, session.AccessToken, args[0], current.Version, args[1])
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s now belongs to %s", fish.Name, fish.OwnerUserID))
			return nil
		},
	}
}

func newDepositCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit",
		Short: "Create a deposit intent and show its QR",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			amount, err := promptPearls("Amount (pearls)")
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			intent, err := newClient(apiBase).DepositIntent(ctx, session.AccessToken, amount)
			if err != nil {
				return err
			}
			renderDepositQR(intent)
			printWarn("The credit lands after the transfer confirms on chain.")
			return nil
		},
	}
}

func newWithdrawCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Request a withdrawal",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			amount, err := promptPearls("Amount (pearls)")
			if err != nil {
				return err
			}
			network, err := promptRequired("Network")
			if err != nil {
				return err
			}
			toAddress, err := promptRequired("Destination address")
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			w, err := newClient(apiBase).RequestWithdrawal(ctx, session.AccessToken, amount, network, toAddress)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Withdrawal %s requested; awaiting approval.", w.ID))
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your withdrawals",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			ws, err := newClient(apiBase).ListWithdrawals(ctx, session.AccessToken)
			if err != nil {
				return err
			}
			renderWithdrawals(ws)
			return nil
		},
	})
	return cmd
}

func newLedgerCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Show your ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			entries, err := newClient(apiBase).Ledger(ctx, session.AccessToken)
			if err != nil {
				return err
			}
			renderLedger(entries)
			return nil
		},
	}
}
