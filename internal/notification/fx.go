package notification

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"github.com/smallbiznis/opspulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewHub),
	fx.Provide(provideFanout),
	fx.Provide(func(f *Fanout) alertdomain.Notifier { return f }),
)

func provideFanout(cfg config.Config, hub *Hub, client *redis.Client, log *zap.Logger) *Fanout {
	sinks := []Sink{hub}

	// A typed nil *redis.Client must not reach the publisher as a non-nil interface.
	if client != nil {
		if p := NewRedisPublisher(client, cfg.Notification.RedisChannel); p != nil {
			sinks = append(sinks, p)
		}
	}

	n := cfg.Notification
	if strings.TrimSpace(n.SMTPHost) != "" {
		mailer := NewSMTPMailer(SMTPConfig{
			Host:     n.SMTPHost,
			Port:     n.SMTPPort,
			Username: n.SMTPUsername,
			Password: n.SMTPPassword,
			From:     n.SMTPFrom,
		})
		if s := NewEmailSink(mailer, n.AlertEmails); s != nil {
			sinks = append(sinks, s)
		}
	}

	fanout := NewFanout(log, sinks...)
	log.Named("notification").Info("notification sinks configured", zap.Strings("sinks", fanout.Sinks()))
	return fanout
}
