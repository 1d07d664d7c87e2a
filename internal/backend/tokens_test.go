package backend

import (
	"context"
	"testing"
	"time"
)

func newTokenFixture(t *testing.T) (*Tokens, *Accounts, Account) {
	t.Helper()
	repo := NewMemoryAccounts()
	accounts := NewAccounts(repo)
	account, err := accounts.Register(context.Background(), Signup{Email: "a@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	tokens, err := NewTokens(repo, "access-secret", "refresh-secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	return tokens, accounts, account
}

func TestNewTokensRequiresSecrets(t *testing.T) {
	if _, err := NewTokens(NewMemoryAccounts(), "", "x", time.Minute, time.Hour); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func TestIssueAndVerify(t *testing.T) {
	tokens, _, account := newTokenFixture(t)
	ctx := context.Background()

	pair, err := tokens.Issue(account)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := tokens.VerifyAccess(ctx, pair.Access)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != account.ID {
		t.Fatalf("expected subject %s, got %s", account.ID, id)
	}

	if _, err := tokens.VerifyAccess(ctx, pair.Refresh); err != ErrInvalidToken {
		t.Fatalf("refresh token must not pass as access, got %v", err)
	}
	if _, err := tokens.Refresh(ctx, pair.Access); err != ErrInvalidToken {
		t.Fatalf("access token must not pass as refresh, got %v", err)
	}
	if _, err := tokens.VerifyAccess(ctx, "not-a-jwt"); err != ErrInvalidToken {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	tokens, _, account := newTokenFixture(t)
	ctx := context.Background()

	pair, err := tokens.Issue(account)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	next, err := tokens.Refresh(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Access == pair.Access || next.Refresh == pair.Refresh {
		t.Fatalf("refresh must rotate both tokens")
	}
	if _, err := tokens.VerifyAccess(ctx, next.Access); err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}
}

func TestExpiredAccessRejected(t *testing.T) {
	tokens, _, account := newTokenFixture(t)
	ctx := context.Background()

	issued := time.Now()
	tokens.now = func() time.Time { return issued }
	pair, err := tokens.Issue(account)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := tokens.VerifyAccess(ctx, pair.Access); err != ErrInvalidToken {
		t.Fatalf("expected expired access token to fail, got %v", err)
	}
	if _, err := tokens.Refresh(ctx, pair.Refresh); err != nil {
		t.Fatalf("refresh token should still be valid: %v", err)
	}
}

func TestLogoutRevokesIssuedTokens(t *testing.T) {
	tokens, accounts, account := newTokenFixture(t)
	ctx := context.Background()

	pair, err := tokens.Issue(account)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := accounts.Logout(ctx, account.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := tokens.VerifyAccess(ctx, pair.Access); err != ErrInvalidToken {
		t.Fatalf("expected revoked access token, got %v", err)
	}
	if _, err := tokens.Refresh(ctx, pair.Refresh); err != ErrInvalidToken {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
}
