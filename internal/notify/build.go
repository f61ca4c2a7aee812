package notify

import (
	"errors"

	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/config"
)

// FromConfig builds the sender for the configured channels. With no channel
// configured alerts go to the log. The returned close function releases
// connections opened here.
func FromConfig(cfg *config.Config, version string, recorder RequestRecorder, logger *zap.Logger) (Sender, func() error, error) {
	var senders []Sender
	var closers []func() error

	if cfg.SMTPHost != "" {
		senders = append(senders, NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.AlertRecipients,
		}, logger))
	}

	if cfg.WebhookURL != "" {
		webhook := NewWebhookSender(WebhookConfig{
			URL:            cfg.WebhookURL,
			Timeout:        cfg.Timeout,
			MaxRetries:     cfg.MaxRetries,
			RetryWaitMin:   cfg.RetryWaitMin,
			RetryWaitMax:   cfg.RetryWaitMax,
			RateLimit:      cfg.RateLimit,
			RateLimitBurst: cfg.RateLimitBurst,
			Version:        version,
		}, logger, recorder)
		senders = append(senders, webhook)
		closers = append(closers, webhook.Close)
	}

	if cfg.NATSURL != "" {
		ns, err := ConnectNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, err
		}
		senders = append(senders, ns)
		closers = append(closers, ns.Close)
	}

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	switch len(senders) {
	case 0:
		return NewLogSender(logger), closeAll, nil
	case 1:
		return senders[0], closeAll, nil
	default:
		return NewMulti(senders...), closeAll, nil
	}
}
