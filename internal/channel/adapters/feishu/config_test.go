package feishu

import (
	"testing"

	lark "github.com/larksuite/oapi-sdk-go/v3"

	"github.com/memohai/larkhook/internal/config"
)

func TestNewAccount(t *testing.T) {
	t.Parallel()

	account, err := NewAccount(config.AccountConfig{
		AccountID:         " default ",
		AppID:             "cli_123",
		AppSecret:         "secret",
		EncryptKey:        " key ",
		VerificationToken: "token",
		Region:            "lark",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.AccountID != "default" || account.EncryptKey != "key" {
		t.Fatalf("fields not trimmed: %+v", account)
	}
	if account.Region != regionLark {
		t.Fatalf("unexpected region: %s", account.Region)
	}
	if account.openBaseURL() != lark.LarkBaseUrl {
		t.Fatalf("unexpected base url: %s", account.openBaseURL())
	}
}

func TestNewAccountDefaultsToFeishu(t *testing.T) {
	t.Parallel()

	account, err := NewAccount(config.AccountConfig{AccountID: "a", AppID: "app", AppSecret: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.openBaseURL() != lark.FeishuBaseUrl {
		t.Fatalf("unexpected base url: %s", account.openBaseURL())
	}
}

func TestNewAccountRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := []config.AccountConfig{
		{AppID: "app", AppSecret: "secret"},
		{AccountID: "a", AppSecret: "secret"},
		{AccountID: "a", AppID: "app", AppSecret: "secret", Region: "mars"},
		{AccountID: "a", AppID: "app", AppSecret: "secret", Region: "global"},
		{AccountID: "a", AppID: "app", AppSecret: "secret", Region: "cn"},
	}
	for i, tc := range cases {
		if _, err := NewAccount(tc); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
