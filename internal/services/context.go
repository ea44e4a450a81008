package services

import (
	"context"
	"errors"

	"coinflip-relay/internal/models"
)

type requestIDKey struct{}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func isValidation(err error) bool {
	return errors.Is(err, models.ErrValidation)
}
