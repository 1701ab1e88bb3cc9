// Package template provides notification body rendering.
//
// 지원하는 변수 형식:
//
//	{{account.username}}, {{account.email}}, {{account.first_name}},
//	{{account.last_name}}, {{account.display_name}}
//
//	{{link.url}}, {{link.expires_at}}, {{link.ttl_minutes}}
package template

import (
	"strconv"
	"strings"
	"time"

	"github.com/tripdesk/backoffice/internal/model"
)

const (
	WelcomeSubject = "Welcome to TripDesk"
	WelcomeBody    = `Hello {{account.display_name}},

your TripDesk account "{{account.username}}" is ready.
You can sign in with your username or {{account.email}}.
`

	RecoverySubject = "Reset your TripDesk password"
	RecoveryBody    = `Hello {{account.display_name}},

a password reset was requested for "{{account.username}}".
Open the link below within {{link.ttl_minutes}} minutes to choose a new password:

{{link.url}}

The link expires at {{link.expires_at}}. If you did not ask for this, ignore this message.
`
)

// AccountData - 템플릿 렌더링에 사용할 Account 데이터
type AccountData struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// LinkData - 복구 링크 렌더링 데이터
type LinkData struct {
	URL       string
	ExpiresAt time.Time
	TTL       time.Duration
}

// AccountDataFromModel - model.Account에서 AccountData 생성
func AccountDataFromModel(account *model.Account) AccountData {
	return AccountData{
		Username:  account.Username,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
	}
}

// DisplayName falls back to the username when no name was given.
func (a AccountData) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// RenderBody - 템플릿의 변수를 실제 값으로 치환
//
// nil로 전달된 항목의 변수는 빈 문자열로 치환됩니다.
func RenderBody(body string, account *AccountData, link *LinkData) string {
	pairs := make([]string, 0, 16)

	if account != nil {
		pairs = append(pairs,
			"{{account.username}}", account.Username,
			"{{account.email}}", account.Email,
			"{{account.first_name}}", account.FirstName,
			"{{account.last_name}}", account.LastName,
			"{{account.display_name}}", account.DisplayName(),
		)
	} else {
		pairs = append(pairs,
			"{{account.username}}", "",
			"{{account.email}}", "",
			"{{account.first_name}}", "",
			"{{account.last_name}}", "",
			"{{account.display_name}}", "",
		)
	}

	if link != nil {
		expiresAt := ""
		if !link.ExpiresAt.IsZero() {
			expiresAt = link.ExpiresAt.UTC().Format(time.RFC1123)
		}
		pairs = append(pairs,
			"{{link.url}}", link.URL,
			"{{link.expires_at}}", expiresAt,
			"{{link.ttl_minutes}}", strconv.Itoa(int(link.TTL.Minutes())),
		)
	} else {
		pairs = append(pairs,
			"{{link.url}}", "",
			"{{link.expires_at}}", "",
			"{{link.ttl_minutes}}", "",
		)
	}

	return strings.NewReplacer(pairs...).Replace(body)
}
