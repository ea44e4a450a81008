package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"coinflip-relay/internal/config"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "coinflip",
		Usage: "play coin-flip matches against the on-chain contract",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc",
				Value:   config.DefaultSuiRPCURL,
				Sources: cli.EnvVars("SUI_RPC_URL"),
			},
			&cli.StringFlag{
				Name:    "package",
				Value:   config.DefaultPackageID,
				Sources: cli.EnvVars("PACKAGE_ID"),
			},
			&cli.StringFlag{
				Name:    "module",
				Value:   config.DefaultModule,
				Sources: cli.EnvVars("COINFLIP_MODULE"),
			},
			&cli.StringFlag{
				Name:    "key",
				Usage:   "player secret key (suiprivkey1… or hex)",
				Sources: cli.EnvVars("COINFLIP_PRIVATE_KEY"),
			},
			&cli.StringFlag{
				Name:    "relay",
				Value:   "http://localhost:" + config.DefaultPort,
				Sources: cli.EnvVars("RELAY_URL"),
			},
			&cli.StringFlag{
				Name:    "relay-token",
				Sources: cli.EnvVars("RELAY_TOKEN"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "balance",
				Usage:     "show the SUI balance of an address (default: your key)",
				ArgsUsage: "[address]",
				Action:    balanceCmd,
			},
			{
				Name:  "create",
				Usage: "open a match and stake the bet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bet", Usage: "bet in SUI", Required: true},
					&cli.StringFlag{Name: "choice", Usage: "heads or tails", Value: "heads"},
				},
				Action: createCmd,
			},
			{
				Name:      "join",
				Usage:     "join an open match, taking the other side",
				ArgsUsage: "<match-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "stake", Usage: "stake in SUI (default: the match bet)"},
				},
				Action: joinCmd,
			},
			{
				Name:      "settle",
				Usage:     "ask the relay to record the coin result",
				ArgsUsage: "<match-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "result", Usage: "heads or tails"},
					&cli.StringFlag{
						Name:    "flip-seed",
						Usage:   "derive the result from this seed instead of --result",
						Sources: cli.EnvVars("FLIP_SEED"),
					},
				},
				Action: settleCmd,
			},
			{
				Name:      "pay",
				Usage:     "pay out a settled match",
				ArgsUsage: "<match-id>",
				Action:    payCmd,
			},
			{
				Name:      "show",
				Usage:     "show a match",
				ArgsUsage: "<match-id>",
				Action:    showCmd,
			},
			{
				Name:      "matches",
				Usage:     "list matches you created or joined",
				ArgsUsage: "[address]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: matchesCmd,
			},
			{
				Name:      "flip",
				Usage:     "compute or verify a provably fair result",
				ArgsUsage: "<match-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "seed",
						Required: true,
						Sources:  cli.EnvVars("FLIP_SEED"),
					},
				},
				Action: flipCmd,
			},
			{
				Name:  "token",
				Usage: "mint a relay access token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret",
						Required: true,
						Sources:  cli.EnvVars("RELAY_JWT_SECRET"),
					},
					&cli.StringFlag{Name: "subject", Value: "frontend"},
					&cli.DurationFlag{Name: "ttl", Value: 0},
				},
				Action: tokenCmd,
			},
			{
				Name:   "keygen",
				Usage:  "generate a new player key",
				Action: keygenCmd,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
