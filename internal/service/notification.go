package service

import (
	"context"
	"sync"
	"time"

	"github.com/tripdesk/backoffice/internal/client"
	"github.com/tripdesk/backoffice/internal/logger"
	"github.com/tripdesk/backoffice/internal/model"
	tmpl "github.com/tripdesk/backoffice/internal/template"
	"go.uber.org/zap"
)

const notificationTimeout = 15 * time.Second

// mailSender - 메일 전송 인터페이스 (client.SMTPMailer)
type mailSender interface {
	IsConfigured() bool
	Send(ctx context.Context, msg client.MailMessage) error
}

// Notifier - 가입/비밀번호 복구 메일을 best-effort로 전송하는 서비스
//
// 전송은 별도 goroutine에서 수행되며 실패는 로그와 메트릭으로만 남습니다.
// 호출자에게 에러를 전파하지 않습니다.
type Notifier struct {
	mailer mailSender

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewNotifier(mailer mailSender) *Notifier {
	return &Notifier{mailer: mailer}
}

// Welcome - 가입 환영 메일 전송
func (n *Notifier) Welcome(ctx context.Context, account *model.Account) {
	data := tmpl.AccountDataFromModel(account)
	n.dispatch(ctx, "welcome", client.MailMessage{
		To:       account.Email,
		Subject:  tmpl.WelcomeSubject,
		TextBody: tmpl.RenderBody(tmpl.WelcomeBody, &data, nil),
	})
}

// Recovery - 비밀번호 복구 링크 메일 전송
func (n *Notifier) Recovery(ctx context.Context, account *model.Account, link tmpl.LinkData) {
	data := tmpl.AccountDataFromModel(account)
	n.dispatch(ctx, "recovery", client.MailMessage{
		To:       account.Email,
		Subject:  tmpl.RecoverySubject,
		TextBody: tmpl.RenderBody(tmpl.RecoveryBody, &data, &link),
	})
}

// Close waits for in-flight deliveries. Messages dispatched afterwards are
// dropped.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, kind string, msg client.MailMessage) {
	if n == nil || n.mailer == nil || !n.mailer.IsConfigured() {
		notificationsTotal.WithLabelValues(kind, "skipped").Inc()
		return
	}

	// 요청 context가 끝나도 전송은 계속되어야 하므로 로거만 넘겨받음
	log := logger.From(ctx).With(logger.Component("notifier"), zap.String("kind", kind))

	// Close 이후에는 wg.Add를 호출하지 않도록 closed 확인과 Add를 같은 잠금 안에서 수행
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		notificationsTotal.WithLabelValues(kind, "dropped").Inc()
		log.Warn("notifier closed, message dropped")
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		if err := n.mailer.Send(sendCtx, msg); err != nil {
			notificationsTotal.WithLabelValues(kind, "failed").Inc()
			log.Warn("notification delivery failed", logger.Err(err))
			return
		}
		notificationsTotal.WithLabelValues(kind, "sent").Inc()
		log.Debug("notification delivered")
	}()
}
