package utils

import (
	"context"

	"github.com/vostoklab/workshop_backend/appctx"
)

var (
	ContextKeyTelegramId       = appctx.ContextKeyTelegramId
	ContextKeyTelegramUsername = appctx.ContextKeyTelegramUsername
	ContextKeyCorrelationId    = appctx.ContextKeyCorrelationId
)

func GetTelegramIdFromContext(ctx context.Context) (int64, bool) {
	return appctx.GetInt64(ctx, ContextKeyTelegramId)
}

func GetTelegramUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTelegramUsername)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTelegramIdInContext(ctx context.Context, telegramId int64) context.Context {
	return appctx.Set(ctx, ContextKeyTelegramId, telegramId)
}

func SetTelegramUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyTelegramUsername, username)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
