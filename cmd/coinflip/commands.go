package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"coinflip-relay/internal/config"
	"coinflip-relay/internal/contract"
	"coinflip-relay/internal/models"
	"coinflip-relay/internal/services"
	"coinflip-relay/internal/sui"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func matchService(ctx context.Context, cmd *cli.Command) (*services.MatchService, func(), error) {
	client, err := sui.Dial(ctx, cmd.String("rpc"), nil)
	if err != nil {
		return nil, nil, err
	}
	c := contract.New(cmd.String("package"), cmd.String("module"))
	return services.NewMatchService(client, c), client.Close, nil
}

func playerKey(cmd *cli.Command) (*sui.Keypair, error) {
	secret := cmd.String("key")
	if secret == "" {
		return nil, fmt.Errorf("a player key is required (--key or COINFLIP_PRIVATE_KEY)")
	}
	return sui.ParseSecretKey(secret)
}

// addressArg returns the first argument, or the key's address when absent.
func addressArg(cmd *cli.Command) (string, error) {
	if addr := cmd.Args().First(); addr != "" {
		return sui.NormalizeAddress(addr), nil
	}
	kp, err := playerKey(cmd)
	if err != nil {
		return "", err
	}
	return kp.Address(), nil
}

func matchIDArg(cmd *cli.Command) (string, error) {
	id := cmd.Args().First()
	if !models.IsObjectID(id) {
		return "", fmt.Errorf("%w: a match object id is required", models.ErrValidation)
	}
	return id, nil
}

func balanceCmd(ctx context.Context, cmd *cli.Command) error {
	addr, err := addressArg(cmd)
	if err != nil {
		return err
	}
	matches, closeFn, err := matchService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	balance, err := matches.GetBalance(ctx, addr)
	if err != nil {
		return err
	}
	return printJSON(balance)
}

func createCmd(ctx context.Context, cmd *cli.Command) error {
	kp, err := playerKey(cmd)
	if err != nil {
		return err
	}
	bet, err := models.ParseSUI(cmd.String("bet"))
	if err != nil {
		return err
	}
	choice, err := parseSide(cmd.String("choice"))
	if err != nil {
		return err
	}

	matches, closeFn, err := matchService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := matches.CreateMatch(ctx, kp, bet, choice)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func joinCmd(ctx context.Context, cmd *cli.Command) error {
	kp, err := playerKey(cmd)
	if err != nil {
		return err
	}
	matchID, err := matchIDArg(cmd)
	if err != nil {
		return err
	}

	matches, closeFn, err := matchService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	var stake uint64
	if s := cmd.String("stake"); s != "" {
		if stake, err = models.ParseSUI(s); err != nil {
			return err
		}
	} else {
		match, err := matches.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		stake = match.BetAmount
	}

	result, err := matches.JoinMatch(ctx, kp, matchID, stake)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func settleCmd(ctx context.Context, cmd *cli.Command) error {
	matchID, err := matchIDArg(cmd)
	if err != nil {
		return err
	}

	outcome, err := settleOutcome(cmd.String("result"), cmd.String("flip-seed"), func() (*models.Match, error) {
		matches, closeFn, err := matchService(ctx, cmd)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		return matches.GetMatch(ctx, matchID)
	})
	if err != nil {
		return err
	}

	relay := services.NewRelayClient(cmd.String("relay"), cmd.String("relay-token"))
	resp, err := relay.SetWinner(ctx, matchID, outcome)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func payCmd(ctx context.Context, cmd *cli.Command) error {
	kp, err := playerKey(cmd)
	if err != nil {
		return err
	}
	matchID, err := matchIDArg(cmd)
	if err != nil {
		return err
	}

	matches, closeFn, err := matchService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := matches.PayWinner(ctx, kp, matchID)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func showCmd(ctx context.Context, cmd *cli.Command) error {
	matchID, err := matchIDArg(cmd)
	if err != nil {
		return err
	}

	matches, closeFn, err := matchService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	match, err := matches.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}

	viewer := ""
	if kp, err := playerKey(cmd); err == nil {
		viewer = kp.Address()
	}
	return printJSON(models.NewMatchView(match, viewer))
}

func matchesCmd(ctx context.Context, cmd *cli.Command) error {
	addr, err := addressArg(cmd)
	if err != nil {
		return err
	}

	matches, closeFn, err := matchService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	views, err := matches.ListPlayerMatches(ctx, addr, cmd.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(views)
}

func flipCmd(ctx context.Context, cmd *cli.Command) error {
	matchID, err := matchIDArg(cmd)
	if err != nil {
		return err
	}

	flipper, err := services.NewCoinFlipper(cmd.String("seed"))
	if err != nil {
		return err
	}

	matches, closeFn, err := matchService(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	match, err := matches.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	result, err := flipper.Flip(match)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func tokenCmd(_ context.Context, cmd *cli.Command) error {
	jwtService := services.NewJWTService(&config.Config{JWTSecret: cmd.String("secret")})

	token, err := jwtService.GenerateToken(cmd.String("subject"), cmd.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func keygenCmd(_ context.Context, _ *cli.Command) error {
	kp, err := sui.GenerateKeypair()
	if err != nil {
		return err
	}
	secret, err := kp.EncodeSecretKey()
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"address":    kp.Address(),
		"secret_key": secret,
	})
}
