package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/innkeep/innkeep/internal/jobs"
	"github.com/innkeep/innkeep/internal/reservations"
	"github.com/innkeep/innkeep/internal/shared"
)

// ReservationLoader reads one reservation without tenant scoping.
type ReservationLoader interface {
	Get(ctx context.Context, id int64) (reservations.Reservation, error)
}

// Message is an outbound guest notice.
type Message struct {
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

// Mailer delivers guest notices.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of a relay.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs msg.
func (m LogMailer) Send(ctx context.Context, msg Message) error {
	loggerOr(m.Logger).Info("mail",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("attachment", msg.AttachmentName),
		slog.Int("attachment_bytes", len(msg.Attachment)))
	return nil
}

// ConfirmationJob sends the booking confirmation with the voucher attached
// when a renderer is configured.
type ConfirmationJob struct {
	Reservations ReservationLoader
	Vouchers     reservations.VoucherRenderer
	Mailer       Mailer
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	clock        func() time.Time
}

// NewConfirmationJob wires the confirmation handler.
func NewConfirmationJob(loader ReservationLoader, vouchers reservations.VoucherRenderer, mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConfirmationJob {
	return &ConfirmationJob{
		Reservations: loader,
		Vouchers:     vouchers,
		Mailer:       mailer,
		Logger:       logger,
		Metrics:      metrics,
		clock:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle sends one confirmation. Bookings cancelled before the task ran, or
// without a guest email, are skipped.
func (j *ConfirmationJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reservations == nil || j.Mailer == nil {
		return errors.New("reservation confirmation: handler not configured")
	}
	var payload ReservationConfirmationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ReservationID <= 0 {
		return fmt.Errorf("reservation confirmation: bad payload: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskReservationConfirmation)
	defer func() { err = tracker.End(err) }()

	logger := loggerOr(j.Logger).With(slog.Int64("reservation_id", payload.ReservationID))
	res, err := j.Reservations.Get(ctx, payload.ReservationID)
	if errors.Is(err, reservations.ErrNotFound) {
		logger.Warn("confirmation for unknown reservation")
		return fmt.Errorf("reservation confirmation: %w: %w", shared.ErrNotFound, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("reservation confirmation: load: %w", err)
	}
	if res.Status != reservations.StatusConfirmed {
		logger.Info("confirmation skipped", slog.String("status", string(res.Status)))
		return nil
	}
	to := strings.TrimSpace(res.Guest.Email)
	if to == "" {
		logger.Info("confirmation skipped, guest has no email")
		return nil
	}

	msg := Message{
		To:      to,
		Subject: fmt.Sprintf("Booking %s confirmed", res.BookingReference),
		Body:    confirmationBody(res),
	}
	if j.Vouchers != nil {
		pdf, err := j.Vouchers.RenderVoucher(ctx, reservations.VoucherFor(res, j.clock()))
		if err != nil {
			// The mail still goes out; the voucher can be downloaded later.
			logger.Warn("render voucher", slog.Any("error", err))
		} else {
			msg.AttachmentName = res.BookingReference + ".pdf"
			msg.Attachment = pdf
		}
	}
	if err := j.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("reservation confirmation: send: %w", err)
	}
	logger.Info("confirmation sent", slog.String("booking_reference", res.BookingReference))
	return nil
}

func confirmationBody(res reservations.Reservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", res.Guest.FullName())
	fmt.Fprintf(&b, "your booking %s is confirmed.\n", res.BookingReference)
	fmt.Fprintf(&b, "Check-in: %s\nCheck-out: %s\nRooms: %d\n",
		res.CheckInDate.Format(shared.DateLayout), res.CheckOutDate.Format(shared.DateLayout), res.RoomsRequested)
	fmt.Fprintf(&b, "Total: %s %s\n", res.TotalWithTax.StringFixed(2), res.Currency)
	return b.String()
}
