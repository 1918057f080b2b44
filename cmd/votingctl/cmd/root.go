package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	ledgerhttp "votingledger/contexts/governance/voting-ledger/transport/http"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	apiURLFlag     = "api-url"
	callerFlag     = "caller"
	paymentWeiFlag = "payment-wei"

	defaultAPIURL     = "http://localhost:8080"
	defaultPaymentWei = "10000000000000000"
)

// Execute runs votingctl with os.Args.
func Execute() error {
	return NewRootCommand(viper.New()).Execute()
}

// NewRootCommand builds the command tree. Flags fall back to VOTINGCTL_*
// environment variables through v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "votingctl",
		Short:         "Voting ledger CLI",
		Long:          "Create rounds, vote, settle and manage the treasury through the voting ledger API.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String(apiURLFlag, defaultAPIURL, "Ledger API base URL")
	root.PersistentFlags().String(callerFlag, "", "Address to act as (sent as "+callerHeader+")")
	bindPersistentFlag(v, root, apiURLFlag)
	bindPersistentFlag(v, root, callerFlag)
	v.SetEnvPrefix("VOTINGCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	client := func() *Client {
		return NewClient(v.GetString(apiURLFlag), v.GetString(callerFlag))
	}

	createRound := &cobra.Command{
		Use:   "create-round <name>",
		Short: "Open a new voting round (owner only).",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var out ledgerhttp.RoundResponse
			err := client().Do(c.Context(), http.MethodPost, "/v1/rounds", ledgerhttp.CreateRoundRequest{Name: args[0]}, &out)
			if err != nil {
				return errors.Wrap(err, "create round")
			}
			return dumpJSON(c.OutOrStdout(), out)
		},
	}

	vote := &cobra.Command{
		Use:   "vote <round_id> <candidate>",
		Short: "Cast the caller's vote for a candidate.",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			payment, err := c.Flags().GetString(paymentWeiFlag)
			if err != nil {
				return err
			}
			var out ledgerhttp.RoundResponse
			err = client().Do(c.Context(), http.MethodPost, "/v1/rounds/"+url.PathEscape(args[0])+"/votes", ledgerhttp.CastVoteRequest{
				Candidate:  args[1],
				PaymentWei: payment,
			}, &out)
			if err != nil {
				return errors.Wrapf(err, "vote in round %s", args[0])
			}
			return dumpJSON(c.OutOrStdout(), out)
		},
	}
	vote.Flags().String(paymentWeiFlag, defaultPaymentWei, "Entry fee to pay, in wei")

	settle := &cobra.Command{
		Use:   "settle <round_id>",
		Short: "Settle a round whose voting period has ended.",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var out ledgerhttp.SettlementResponse
			if err := client().Do(c.Context(), http.MethodPost, "/v1/rounds/"+url.PathEscape(args[0])+"/settle", nil, &out); err != nil {
				return errors.Wrapf(err, "settle round %s", args[0])
			}
			return dumpJSON(c.OutOrStdout(), out)
		},
	}

	info := &cobra.Command{
		Use:   "info <round_id>",
		Short: "Print a round's voting info.",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var out ledgerhttp.VotingInfoResponse
			if err := client().Do(c.Context(), http.MethodGet, "/v1/rounds/"+url.PathEscape(args[0])+"/voting-info", nil, &out); err != nil {
				return errors.Wrapf(err, "voting info for round %s", args[0])
			}
			return dumpJSON(c.OutOrStdout(), out)
		},
	}

	rounds := &cobra.Command{
		Use:   "rounds",
		Short: "List every round.",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			var out ledgerhttp.ListRoundsResponse
			if err := client().Do(c.Context(), http.MethodGet, "/v1/rounds", nil, &out); err != nil {
				return errors.Wrap(err, "list rounds")
			}
			return dumpJSON(c.OutOrStdout(), out)
		},
	}

	withdraw := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw the commission balance (owner only).",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			var out ledgerhttp.WithdrawResponse
			if err := client().Do(c.Context(), http.MethodPost, "/v1/treasury/withdraw", nil, &out); err != nil {
				return errors.Wrap(err, "withdraw commission")
			}
			return dumpJSON(c.OutOrStdout(), out)
		},
	}

	balance := &cobra.Command{
		Use:   "balance <address>",
		Short: "Print the amount the ledger has paid to an address.",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var out ledgerhttp.BalanceResponse
			if err := client().Do(c.Context(), http.MethodGet, "/v1/accounts/"+url.PathEscape(args[0])+"/balance", nil, &out); err != nil {
				return errors.Wrapf(err, "balance of %s", args[0])
			}
			return dumpJSON(c.OutOrStdout(), out)
		},
	}

	root.AddCommand(createRound, vote, settle, info, rounds, withdraw, balance)
	return root
}

func bindPersistentFlag(v *viper.Viper, command *cobra.Command, key string) {
	if err := v.BindPFlag(key, command.PersistentFlags().Lookup(key)); err != nil {
		panic(fmt.Sprintf("bind flag %q: %v", key, err))
	}
}

func dumpJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
