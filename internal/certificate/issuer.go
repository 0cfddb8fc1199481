package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnstations/stationbot/core/logger"
	"github.com/learnstations/stationbot/internal/messaging"
	"github.com/learnstations/stationbot/internal/participant"
)

// CongratsCaption accompanies the certificate sent on completion.
const CongratsCaption = "Congratulations, you've visited all our stations 🎉 Here's a token of appreciation for your efforts!"

// Painter renders a certificate for a display name.
type Painter interface {
	Render(displayName string) ([]byte, error)
}

// Archiver keeps a copy of each rendered certificate.
type Archiver interface {
	Store(ctx context.Context, key string, png []byte) error
}

// Issuer renders certificates and sends them to chats.
type Issuer struct {
	painter Painter
	archive Archiver
	msg     messaging.Messenger
	log     *slog.Logger
}

// NewIssuer builds an Issuer. archive may be nil.
func NewIssuer(painter Painter, archive Archiver, msg messaging.Messenger) (*Issuer, error) {
	if painter == nil || msg == nil {
		return nil, errors.New("certificate: painter and messenger required")
	}
	return &Issuer{painter: painter, archive: archive, msg: msg, log: logger.Cert}, nil
}

// Certify sends the completion certificate to the learner's private chat.
func (i *Issuer) Certify(ctx context.Context, p participant.Participant) error {
	return i.Deliver(ctx, p.UserID, p, CongratsCaption)
}

// Deliver renders p's certificate and sends it to chatID. Archive failures
// are logged only.
func (i *Issuer) Deliver(ctx context.Context, chatID int64, p participant.Participant, caption string) error {
	start := time.Now()
	name := DisplayName(p.Name)
	img, err := i.painter.Render(name)
	if err != nil {
		logger.LogEvent(ctx, i.log, slog.LevelError, "cert.render",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("render certificate: %w", err)
	}

	if i.archive != nil {
		key := ObjectKey(p)
		if err := i.archive.Store(ctx, key, img); err != nil {
			logger.LogEvent(ctx, i.log, slog.LevelWarn, "cert.archive",
				slog.String("status", "fail"),
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
		}
	}

	if _, err := i.msg.SendPhoto(ctx, chatID, img, caption); err != nil {
		return fmt.Errorf("send certificate: %w", err)
	}
	logger.LogEvent(ctx, i.log, slog.LevelInfo, "cert.issued",
		slog.Int64("primary_key", p.PrimaryKey),
		slog.Int("bytes", len(img)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// ObjectKey is the archive key of p's certificate.
func ObjectKey(p participant.Participant) string {
	return fmt.Sprintf("%d/%s.png", p.UserID, p.ID)
}
