package feishu

import (
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"

	"github.com/memohai/larkhook/internal/channel"
	"github.com/memohai/larkhook/internal/config"
)

// Type is the channel identifier used in routing and addresses.
const Type channel.ChannelType = "lark"

const (
	regionFeishu = "feishu"
	regionLark   = "lark"
)

// Account holds the credentials of the single Lark app served by this process.
type Account struct {
	AccountID         string
	AppID             string
	AppSecret         string
	EncryptKey        string
	VerificationToken string
	Region            string
}

// NewAccount builds an Account from the [account] config section.
func NewAccount(cfg config.AccountConfig) (Account, error) {
	region, err := normalizeRegion(cfg.Region)
	if err != nil {
		return Account{}, err
	}
	account := Account{
		AccountID:         strings.TrimSpace(cfg.AccountID),
		AppID:             strings.TrimSpace(cfg.AppID),
		AppSecret:         strings.TrimSpace(cfg.AppSecret),
		EncryptKey:        strings.TrimSpace(cfg.EncryptKey),
		VerificationToken: strings.TrimSpace(cfg.VerificationToken),
		Region:            region,
	}
	if account.AccountID == "" {
		return Account{}, fmt.Errorf("lark account_id is required")
	}
	if account.AppID == "" || account.AppSecret == "" {
		return Account{}, fmt.Errorf("lark app_id and app_secret are required")
	}
	return account, nil
}

func normalizeRegion(raw string) (string, error) {
	switch strings.TrimSpace(raw) {
	case "", regionFeishu:
		return regionFeishu, nil
	case regionLark:
		return regionLark, nil
	default:
		return "", fmt.Errorf("lark region must be feishu or lark")
	}
}

func (a Account) openBaseURL() string {
	if a.Region == regionLark {
		return lark.LarkBaseUrl
	}
	return lark.FeishuBaseUrl
}
