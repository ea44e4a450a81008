package main

import (
	"fmt"
	"strings"

	"coinflip-relay/internal/models"
	"coinflip-relay/internal/services"
)

// parseSide maps heads to true and tails to false.
func parseSide(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heads", "h", "true":
		return true, nil
	case "tails", "t", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: side must be heads or tails, got %q", models.ErrValidation, s)
}

// settleOutcome takes the explicit result when given, otherwise derives it
// from the flip seed and the joined match returned by load.
func settleOutcome(result, seed string, load func() (*models.Match, error)) (bool, error) {
	if result != "" {
		return parseSide(result)
	}
	if seed == "" {
		return false, fmt.Errorf("%w: --result or --flip-seed is required", models.ErrValidation)
	}

	flipper, err := services.NewCoinFlipper(seed)
	if err != nil {
		return false, err
	}
	match, err := load()
	if err != nil {
		return false, err
	}
	flip, err := flipper.Flip(match)
	if err != nil {
		return false, err
	}
	return flip.Outcome, nil
}
