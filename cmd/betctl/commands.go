package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/ether"
	"github.com/betdapp/socialbets-smartcontracts/pkg/socialbets"
)

func newClient(cmd *cobra.Command) (*socialbets.Client, error) {
	api, _ := cmd.Flags().GetString("api")
	hexKey, _ := cmd.Flags().GetString("key")

	var opts []socialbets.Option
	if hexKey != "" {
		key, err := socialbets.KeyFromHex(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid --key: %w", err)
		}
		opts = append(opts, socialbets.WithKey(key))
	}
	return socialbets.NewClient(api, opts...), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func amountFlag(cmd *cobra.Command, name string) (string, error) {
	s, _ := cmd.Flags().GetString(name)
	v, err := ether.Parse(s)
	if err != nil {
		return "", fmt.Errorf("--%s: %w", name, err)
	}
	return v.String(), nil
}

func addressFlag(cmd *cobra.Command, name string, allowZero bool) (string, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" && allowZero {
		return common.Address{}.Hex(), nil
	}
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("--%s: invalid address %q", name, s)
	}
	return common.HexToAddress(s).Hex(), nil
}

func betIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "betid",
		Short: "Compute the id a bet with these terms would get, offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			first := c.Address()
			if s, _ := cmd.Flags().GetString("first-party"); s != "" {
				if !common.IsHexAddress(s) {
					return fmt.Errorf("--first-party: invalid address %q", s)
				}
				first = common.HexToAddress(s)
			}
			if first == (common.Address{}) {
				return errors.New("--first-party required when --key is not set")
			}

			metadata, _ := cmd.Flags().GetString("metadata")
			firstS, _ := cmd.Flags().GetString("first-stake")
			secondS, _ := cmd.Flags().GetString("second-stake")
			v1, err := ether.Parse(firstS)
			if err != nil {
				return fmt.Errorf("--first-stake: %w", err)
			}
			v2, err := ether.Parse(secondS)
			if err != nil {
				return fmt.Errorf("--second-stake: %w", err)
			}
			join, _ := cmd.Flags().GetInt64("join-deadline")
			result, _ := cmd.Flags().GetInt64("result-deadline")

			id, err := bets.CalculateBetID(metadata, first, v1, v2, time.Unix(join, 0), time.Unix(result, 0))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.Hex())
			return nil
		},
	}
	cmd.Flags().String("metadata", "", "free-form terms of the bet")
	cmd.Flags().String("first-party", "", "first party address (defaults to the --key address)")
	cmd.Flags().String("first-stake", "", "first party stake")
	cmd.Flags().String("second-stake", "", "second party stake")
	cmd.Flags().Int64("join-deadline", 0, "second party join deadline, unix seconds")
	cmd.Flags().Int64("result-deadline", 0, "result deadline, unix seconds")
	for _, f := range []string{"first-stake", "second-stake", "join-deadline", "result-deadline"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func addTermsFlags(cmd *cobra.Command) {
	cmd.Flags().String("metadata", "", "free-form terms of the bet")
	cmd.Flags().String("first-stake", "", "first party stake, e.g. 0.5 or 500000000000000000wei")
	cmd.Flags().String("second-stake", "", "second party stake")
	cmd.Flags().Duration("join-window", 24*time.Hour, "time the second party has to join")
	cmd.Flags().Duration("result-window", 7*24*time.Hour, "time until the result is known")
	_ = cmd.MarkFlagRequired("first-stake")
	_ = cmd.MarkFlagRequired("second-stake")
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <bet-id>",
		Short: "Show a live bet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			b, err := c.Bet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, b)
		},
	}
}

func dueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List bets whose deadline has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			due, err := c.DueBets(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for i := range due {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", due[i].ID, due[i].State, socialbets.TimeoutKind(&due[i]))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "maximum bets to list")
	return cmd
}

func createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Offer a bet as the signing address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			var req socialbets.CreateBetRequest
			req.Metadata, _ = cmd.Flags().GetString("metadata")
			if req.SecondParty, err = addressFlag(cmd, "second-party", true); err != nil {
				return err
			}
			if req.Mediator, err = addressFlag(cmd, "mediator", true); err != nil {
				return err
			}
			req.MediatorFee, _ = cmd.Flags().GetUint64("mediator-fee")
			if req.FirstBetValue, err = amountFlag(cmd, "first-stake"); err != nil {
				return err
			}
			if req.SecondBetValue, err = amountFlag(cmd, "second-stake"); err != nil {
				return err
			}
			join, _ := cmd.Flags().GetDuration("join-window")
			result, _ := cmd.Flags().GetDuration("result-window")
			req.SecondPartyTimeframe = time.Now().Add(join).Unix()
			req.ResultTimeframe = time.Now().Add(result).Unix()

			// The first party sends its stake plus the platform fee.
			first, _ := ether.ParseWei(req.FirstBetValue)
			second, _ := ether.ParseWei(req.SecondBetValue)
			quote, err := c.Fee(cmd.Context(), first, second)
			if err != nil {
				return err
			}
			req.Value = quote.Value

			r, err := c.CreateBet(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}
	addTermsFlags(cmd)
	cmd.Flags().String("second-party", "", "required second party (empty for anyone)")
	cmd.Flags().String("mediator", "", "mediator address (empty for the platform mediator)")
	cmd.Flags().Uint64("mediator-fee", 0, "mediator fee in basis points")
	return cmd
}

func participateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "participate <bet-id>",
		Short: "Join a bet with its second stake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			b, err := c.Bet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stake, err := ether.ParseWei(b.SecondBetValue)
			if err != nil {
				return err
			}
			joined, r, err := c.Participate(cmd.Context(), args[0], stake)
			if err != nil {
				return err
			}
			if !joined {
				fmt.Fprintln(cmd.ErrOrStderr(), "join window had passed, bet cancelled")
			}
			return printJSON(cmd, r)
		},
	}
}

func voteCmd() *cobra.Command {
	return answerCmd("vote", "Vote on a bet's outcome", func(c *socialbets.Client) func(*cobra.Command, string, string) (*socialbets.Receipt, error) {
		return func(cmd *cobra.Command, id, answer string) (*socialbets.Receipt, error) {
			return c.Vote(cmd.Context(), id, answer)
		}
	})
}

func mediateCmd() *cobra.Command {
	return answerCmd("mediate", "Decide a disputed bet as its mediator", func(c *socialbets.Client) func(*cobra.Command, string, string) (*socialbets.Receipt, error) {
		return func(cmd *cobra.Command, id, answer string) (*socialbets.Receipt, error) {
			return c.Mediate(cmd.Context(), id, answer)
		}
	})
}

func answerCmd(use, short string, call func(*socialbets.Client) func(*cobra.Command, string, string) (*socialbets.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:       use + " <bet-id> <first_party_wins|second_party_wins|tie>",
		Short:     short,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{socialbets.AnswerFirstPartyWins, socialbets.AnswerSecondPartyWins, socialbets.AnswerTie},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			r, err := call(c)(cmd, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}
}

func crankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crank <bet-id>",
		Short: "Resolve a bet whose deadline has passed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			b, err := c.Bet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			r, err := c.Timeout(cmd.Context(), args[0], socialbets.TimeoutKind(b))
			var apiErr *socialbets.APIError
			if errors.As(err, &apiErr) && apiErr.Code == "no_timeout" {
				return fmt.Errorf("bet not due until %s", time.Unix(b.Deadline, 0).UTC().Format(time.RFC3339))
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}
}

func feeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Quote the platform fee for two stakes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			firstS, _ := cmd.Flags().GetString("first-stake")
			secondS, _ := cmd.Flags().GetString("second-stake")
			first, err := ether.Parse(firstS)
			if err != nil {
				return fmt.Errorf("--first-stake: %w", err)
			}
			second, err := ether.Parse(secondS)
			if err != nil {
				return fmt.Errorf("--second-stake: %w", err)
			}
			q, err := c.Fee(cmd.Context(), first, second)
			if err != nil {
				return err
			}
			return printJSON(cmd, q)
		},
	}
	cmd.Flags().String("first-stake", "", "first party stake")
	cmd.Flags().String("second-stake", "", "second party stake")
	_ = cmd.MarkFlagRequired("first-stake")
	_ = cmd.MarkFlagRequired("second-stake")
	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show a ledger balance (defaults to the signing address)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			addr := c.Address()
			if len(args) == 1 {
				if !common.IsHexAddress(args[0]) {
					return fmt.Errorf("invalid address %q", args[0])
				}
				addr = common.HexToAddress(args[0])
			}
			if addr == (common.Address{}) {
				return errors.New("address required when --key is not set")
			}
			bal, err := c.Balance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			return printJSON(cmd, bal)
		},
	}
}

func withdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <amount>",
		Short: "Withdraw available balance to the signing address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			amount, err := ether.Parse(args[0])
			if err != nil {
				return err
			}
			w, err := c.Withdraw(cmd.Context(), amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, w)
		},
	}
}
