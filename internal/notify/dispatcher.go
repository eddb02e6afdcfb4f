package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

// ErrNoRecipient is returned by Resend when no address can be resolved
var ErrNoRecipient = errors.New("no recipient for alert")

// Store is the persistence the dispatcher needs
type Store interface {
	MarkNotified(ctx context.Context, debunkID uint) error
	GetDebunk(ctx context.Context, id uint) (*model.Debunk, error)
	MatchCompany(ctx context.Context, brand string) (*model.Company, error)
}

// Recorder observes notification attempts; err is nil on success
type Recorder interface {
	NotificationAttempted(ctx context.Context, err error)
}

// Dispatcher applies the notification gate and records delivery on the debunk.
// A failed send never touches the debunk or the ledger.
type Dispatcher struct {
	notifier Notifier
	store    Store
	sender   string
	recorder Recorder
	log      *zap.Logger
}

// NewDispatcher creates a Dispatcher. sender is the fallback recipient for
// operator-triggered sends whose brand matches no company.
func NewDispatcher(notifier Notifier, store Store, sender string, log *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, store: store, sender: sender, log: logging.OrNop(log)}
}

// WithRecorder attaches a metrics recorder
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// Dispatch alerts company about debunk when the verdict is adverse. It
// reports whether an alert was delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, debunk *model.Debunk, post *model.Post, company *model.Company) (bool, error) {
	if !ShouldNotify(debunk.Verdict) {
		return false, nil
	}
	if company == nil || company.Email == "" {
		d.log.Warn("adverse verdict but company has no email", zap.Uint("debunk_id", debunk.ID))
		return false, ErrNoRecipient
	}

	if err := d.send(ctx, NewAlert(company.Email, debunk, post), debunk.ID); err != nil {
		return false, err
	}
	return true, nil
}

// Resend sends the alert for a stored debunk regardless of verdict. An empty
// recipient resolves the company by brand, then falls back to the sender.
func (d *Dispatcher) Resend(ctx context.Context, debunkID uint, recipient string) (*Alert, error) {
	debunk, err := d.store.GetDebunk(ctx, debunkID)
	if err != nil {
		return nil, err
	}

	if recipient == "" && debunk.Post != nil {
		company, err := d.store.MatchCompany(ctx, debunk.Post.Brand)
		if err == nil && company != nil {
			recipient = company.Email
		}
	}
	if recipient == "" {
		recipient = d.sender
	}
	if recipient == "" {
		return nil, ErrNoRecipient
	}

	alert := NewAlert(recipient, debunk, debunk.Post)
	if err := d.send(ctx, alert, debunk.ID); err != nil {
		return &alert, err
	}
	return &alert, nil
}

func (d *Dispatcher) send(ctx context.Context, alert Alert, debunkID uint) error {
	err := d.notifier.Send(ctx, alert)
	if d.recorder != nil {
		d.recorder.NotificationAttempted(ctx, err)
	}
	if err != nil {
		d.log.Warn("alert not delivered",
			zap.Uint("debunk_id", debunkID),
			zap.String("to", alert.To),
			zap.Error(err),
		)
		return fmt.Errorf("send alert for debunk %d: %w", debunkID, err)
	}

	if err := d.store.MarkNotified(ctx, debunkID); err != nil {
		return fmt.Errorf("mark debunk %d notified: %w", debunkID, err)
	}
	d.log.Info("alert sent",
		zap.Uint("debunk_id", debunkID),
		zap.String("to", alert.To),
		zap.String("verdict", string(alert.Verdict)),
	)
	return nil
}
