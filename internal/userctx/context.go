package userctx

import (
	"context"
	"strings"
)

type contextKey string

const (
	userIDContextKey     contextKey = "user_id"
	guestTokenContextKey contextKey = "guest_token"
)

// OwnerKind: явный режим владельца вместо неявной проверки localStorage
type OwnerKind string

const (
	OwnerGuest   OwnerKind = "guest"
	OwnerAccount OwnerKind = "account"
)

// Owner references whoever owns a report: an account id or a guest-session token.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func AccountOwner(accountID string) Owner {
	return Owner{Kind: OwnerAccount, ID: accountID}
}

func GuestOwner(token string) Owner {
	return Owner{Kind: OwnerGuest, ID: token}
}

func (o Owner) IsGuest() bool   { return o.Kind == OwnerGuest }
func (o Owner) IsAccount() bool { return o.Kind == OwnerAccount }

func (o Owner) Valid() bool {
	return (o.Kind == OwnerGuest || o.Kind == OwnerAccount) && strings.TrimSpace(o.ID) != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok
}

func WithGuestToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, guestTokenContextKey, token)
}

func GetGuestToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(guestTokenContextKey).(string)
	return token, ok
}

// OwnerFrom resolves the request owner: an authenticated account wins over a guest token.
func OwnerFrom(ctx context.Context) (Owner, bool) {
	if userID, ok := GetUserID(ctx); ok && strings.TrimSpace(userID) != "" {
		return AccountOwner(userID), true
	}
	if token, ok := GetGuestToken(ctx); ok && strings.TrimSpace(token) != "" {
		return GuestOwner(token), true
	}
	return Owner{}, false
}
