package rewards

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rewards-backend/dtos"
	"rewards-backend/models"
	"rewards-backend/notify"
	"rewards-backend/store"

	"gorm.io/datatypes"
)

type birthdayOutcome struct {
	userID  string
	awarded bool
	err     error
}

// birthdaysOn lists the MM-DD keys celebrated on day. Members born on February 29
// are celebrated on February 28 in common years.
func birthdaysOn(day time.Time) []string {
	keys := []string{day.Format("01-02")}
	if day.Month() == time.February && day.Day() == 28 && !isLeap(day.Year()) {
		keys = append(keys, "02-29")
	}
	return keys
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// RunBirthdayBonuses credits every member whose birthday is today. Members are
// processed independently; one failure does not stop the batch. A JobRun summary is
// always persisted.
func (s *Service) RunBirthdayBonuses(ctx context.Context) (*models.JobRun, error) {
	started := s.clock.Now()
	run := &models.JobRun{Job: models.JobBirthdayBonus, Status: dtos.JobStatusProcessing, StartedAt: started}
	today := started.In(s.policy.location())

	var profiles []models.LoyaltyProfile
	err := s.runInTx(ctx, func(tx store.Tx) error {
		var err error
		profiles, err = tx.ProfilesByBirthday(birthdaysOn(today)...)
		return err
	})
	if err != nil {
		run.Status = dtos.JobStatusFailed
		run.Errors = datatypes.NewJSONType([]dtos.JobError{{Error: "birthday query failed: " + err.Error()}})
		s.finishJobRun(ctx, run)
		return run, fmt.Errorf("query birthdays: %w", err)
	}

	outcomes := s.awardBirthdays(ctx, profiles, started)

	var jobErrors []dtos.JobError
	for _, o := range outcomes {
		run.Processed++
		switch {
		case o.err != nil:
			run.Failed++
			jobErrors = append(jobErrors, dtos.JobError{UserID: o.userID, Error: o.err.Error()})
		case o.awarded:
			run.Awarded++
		default:
			run.Skipped++
		}
	}
	if jobErrors == nil {
		jobErrors = []dtos.JobError{}
	}
	run.Errors = datatypes.NewJSONType(jobErrors)
	run.Status = dtos.JobStatusCompleted
	if run.Failed > 0 {
		run.Status = dtos.JobStatusCompletedWithErrors
	}

	s.finishJobRun(ctx, run)
	s.logger.Info("birthday bonuses processed",
		"processed", run.Processed, "awarded", run.Awarded, "skipped", run.Skipped, "failed", run.Failed)
	return run, nil
}

func (s *Service) finishJobRun(ctx context.Context, run *models.JobRun) {
	completed := s.clock.Now()
	run.CompletedAt = &completed
	s.metrics.RecordBirthdayRun(run.Status, run.Awarded, run.Failed)

	// The summary outlives a cancelled trigger.
	err := s.runInTx(context.WithoutCancel(ctx), func(tx store.Tx) error {
		return tx.CreateJobRun(run)
	})
	if err != nil {
		s.logger.Error("failed to persist job run", "job", run.Job, "status", run.Status, "error", err)
	}
}

// awardBirthdays fans the profiles out to a bounded worker pool.
func (s *Service) awardBirthdays(ctx context.Context, profiles []models.LoyaltyProfile, now time.Time) []birthdayOutcome {
	outcomes := make([]birthdayOutcome, len(profiles))
	workers := s.policy.BirthdayWorkers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				userID := profiles[i].UserID
				awarded, err := s.awardBirthday(ctx, userID, now)
				if err != nil {
					s.logger.Error("birthday bonus failed", "user_id", userID, "error", err)
				}
				outcomes[i] = birthdayOutcome{userID: userID, awarded: awarded, err: err}
			}
		}()
	}

	for i := range profiles {
		if ctx.Err() != nil {
			outcomes[i] = birthdayOutcome{userID: profiles[i].UserID, err: ctx.Err()}
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

// awardBirthday credits one member unless they already received this year's bonus.
func (s *Service) awardBirthday(ctx context.Context, userID string, now time.Time) (bool, error) {
	var entry *models.PointsTransaction
	var change tierChange
	var balance int
	err := s.runInTx(ctx, func(tx store.Tx) error {
		entry, change = nil, tierChange{}
		p, err := tx.GetProfile(userID, true)
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindNotFound, "loyalty profile not found")
		}
		if err != nil {
			return err
		}

		loc := s.policy.location()
		if p.LastBirthdayBonusAt != nil && p.LastBirthdayBonusAt.In(loc).Year() == now.In(loc).Year() {
			return nil
		}

		p.LastBirthdayBonusAt = &now
		entry, change, err = s.apply(tx, p, mutation{
			delta:    s.policy.BirthdayBonus,
			lifetime: s.policy.BirthdayBonus,
			entry: models.PointsTransaction{
				Type:        models.TransactionBirthdayBonus,
				Description: fmt.Sprintf("Happy birthday! %d bonus points", s.policy.BirthdayBonus),
				Metadata:    map[string]interface{}{"year": now.In(loc).Year()},
			},
		})
		balance = p.Points
		return err
	})
	if err != nil || entry == nil {
		return false, err
	}

	s.committed(ctx, entry, change)
	s.notify(ctx, notify.Notification{
		Kind:    notify.KindBirthdayBonus,
		UserID:  userID,
		Title:   "Happy birthday",
		Message: fmt.Sprintf("We added %d points to your account. Your balance is now %d.", s.policy.BirthdayBonus, balance),
	})
	return true, nil
}
