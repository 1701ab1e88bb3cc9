package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tripdesk/backoffice/internal/model"
)

func TestRenderBody_Recovery(t *testing.T) {
	account := AccountDataFromModel(&model.Account{Username: "alice", Email: "alice@x.com", FirstName: "Alice"})
	link := &LinkData{
		URL:       "https://app.example.com/reset?token=abc",
		ExpiresAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		TTL:       time.Hour,
	}

	got := RenderBody(RecoveryBody, &account, link)

	assert.Contains(t, got, "Hello Alice,")
	assert.Contains(t, got, `requested for "alice"`)
	assert.Contains(t, got, "within 60 minutes")
	assert.Contains(t, got, "https://app.example.com/reset?token=abc")
	assert.Contains(t, got, "Fri, 01 May 2026 10:00:00 UTC")
	assert.NotContains(t, got, "{{")
}

func TestRenderBody_NilSectionsRenderEmpty(t *testing.T) {
	got := RenderBody("[{{account.username}}|{{link.url}}|{{link.expires_at}}]", nil, nil)
	assert.Equal(t, "[||]", got)
}

func TestAccountData_DisplayName(t *testing.T) {
	assert.Equal(t, "bob", AccountData{Username: "bob"}.DisplayName())
	assert.Equal(t, "Bob Ross", AccountData{Username: "bob", FirstName: "Bob", LastName: "Ross"}.DisplayName())
}
