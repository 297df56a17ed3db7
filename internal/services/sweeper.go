package services

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"tokoshop/internal/apperrors"
	"tokoshop/internal/metrics"
	"tokoshop/internal/models"
	"tokoshop/internal/repositories"
)

var errAlreadySettled = errors.New("reservation settled since it was listed")

// SweepResult counts what one sweep did.
type SweepResult struct {
	Released int
	Skipped  int
	Failed   int
	Expired  int64
}

// Sweeper returns stock held by checkouts whose payment never arrived.
type Sweeper struct {
	db           *gorm.DB
	ledger       repositories.InventoryLedger
	reservations repositories.ReservationRepository
	attempts     repositories.CheckoutAttemptRepository
	interval     time.Duration
	batchSize    int
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewSweeper(
	db *gorm.DB,
	ledger repositories.InventoryLedger,
	reservations repositories.ReservationRepository,
	attempts repositories.CheckoutAttemptRepository,
	interval time.Duration,
	m *metrics.Metrics,
) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Sweeper{
		db:           db,
		ledger:       ledger,
		reservations: reservations,
		attempts:     attempts,
		interval:     interval,
		batchSize:    500,
		metrics:      m,
		now:          time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Printf("[sweeper] started interval=%s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[sweeper] sweep failed: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Println("[sweeper] stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce releases every hold whose expiry has passed. Each line runs in
// its own transaction; one failing line does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()
	db := s.db.WithContext(ctx)

	for {
		lines, err := s.reservations.ListExpired(db, now, s.batchSize)
		if err != nil {
			return res, err
		}

		progressed := false
		for i := range lines {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			switch err := s.releaseLine(ctx, &lines[i], now); {
			case err == nil:
				res.Released++
				progressed = true
			case errors.Is(err, errAlreadySettled):
				res.Skipped++
				progressed = true
				log.Printf("[sweeper] skip reservation=%s: %v", lines[i].ID, err)
			default:
				res.Failed++
				log.Printf("ALERT [sweeper] release reservation=%s product=%s qty=%d failed: %v",
					lines[i].ID, lines[i].ProductID, lines[i].HeldQuantity, err)
			}
		}

		// A short page means everything expired has been seen. A full page
		// with no progress would be listed again unchanged.
		if len(lines) < s.batchSize || !progressed {
			break
		}
	}

	expired, err := s.attempts.ExpireStale(db, now)
	if err != nil {
		log.Printf("[sweeper] expire checkout attempts: %v", err)
	}
	res.Expired = expired

	s.metrics.Swept("released", res.Released)
	s.metrics.Swept("skipped", res.Skipped)
	s.metrics.Swept("failed", res.Failed)
	if res.Released+res.Skipped+res.Failed > 0 || res.Expired > 0 {
		log.Printf("[sweeper] released=%d skipped=%d failed=%d attempts_expired=%d",
			res.Released, res.Skipped, res.Failed, res.Expired)
	}
	return res, nil
}

// releaseLine gives the line's held stock back and reverts it to a plain
// cart line. The product is written before the reservation; if the
// reservation moved on in the meantime the release is rolled back.
func (s *Sweeper) releaseLine(ctx context.Context, line *models.Reservation, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Release(tx, line.ProductID, line.HeldQuantity); err != nil {
			if errors.Is(err, apperrors.ErrInternal) && s.settled(tx, line) {
				return errAlreadySettled
			}
			return err
		}
		ok, err := s.reservations.RevertExpired(tx, line, now)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadySettled
		}
		return nil
	})
}

// settled reports whether the line was confirmed, removed or re-held after
// it was listed. A release that finds less reserved stock than the line
// held is then expected rather than a broken ledger.
func (s *Sweeper) settled(tx *gorm.DB, line *models.Reservation) bool {
	cur, err := s.reservations.GetByID(tx, line.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return true
	}
	if err != nil {
		return false
	}
	return cur.Processed || !cur.Reserved || cur.HeldQuantity != line.HeldQuantity
}
