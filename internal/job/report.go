package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"tenapay/internal/config"
	"tenapay/internal/infrastructure/mail"
	"tenapay/internal/model"
	"tenapay/internal/repository"

	"gorm.io/gorm"
)

// DailyReportJob mails the operator a platform summary once a day at the
// configured hour.
type DailyReportJob struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	mailer          *mail.Mailer
	cfg             *config.Config
	stopCh          chan struct{}
	interval        time.Duration
	lastSentDate    string
}

func NewDailyReportJob(db *gorm.DB, cfg *config.Config, mailer *mail.Mailer) *DailyReportJob {
	return &DailyReportJob{
		db:              db,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		mailer:          mailer,
		cfg:             cfg,
		stopCh:          make(chan struct{}),
		interval:        time.Minute,
	}
}

func (j *DailyReportJob) Start(ctx context.Context) {
	log.Println("[DailyReportJob] daily report job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[DailyReportJob] context cancelled, exiting")
			return
		case <-j.stopCh:
			log.Println("[DailyReportJob] stopped")
			return
		case <-ticker.C:
			j.maybeSendReport(ctx)
		}
	}
}

func (j *DailyReportJob) Stop() {
	close(j.stopCh)
}

// maybeSendReport fires at most once per calendar day, on the first tick at or
// after the configured hour.
func (j *DailyReportJob) maybeSendReport(ctx context.Context) {
	now := time.Now()
	today := now.Format("2006-01-02")

	if now.Hour() < j.cfg.Report.Hour || j.lastSentDate == today {
		return
	}

	if err := j.sendReport(ctx, today); err != nil {
		log.Printf("[DailyReportJob] failed to send report: %v", err)
		return
	}

	j.lastSentDate = today
	log.Printf("[DailyReportJob] daily report sent: date=%s, to=%s", today, j.cfg.Report.AdminEmail)
}

func (j *DailyReportJob) sendReport(ctx context.Context, date string) error {
	totalUsers, err := j.accountRepo.Count(ctx)
	if err != nil {
		return err
	}
	collected, err := j.transactionRepo.SumByType(ctx, 0, model.TransactionTypeCredit)
	if err != nil {
		return err
	}
	claimed, err := j.transactionRepo.SumByType(ctx, 0, model.TransactionTypeDebit)
	if err != nil {
		return err
	}
	pool, err := j.accountRepo.SumBalances(ctx)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(
		`<h3>TenaPay Daily Summary %s</h3>
<ul>
<li>Members: %d</li>
<li>Premiums collected: %s ETB</li>
<li>Claims paid: %s ETB</li>
<li>Fund pool: %s ETB</li>
</ul>`,
		date, totalUsers, collected.StringFixed(2), claimed.StringFixed(2), pool.StringFixed(2))

	return j.mailer.Send(j.cfg.Report.AdminEmail, "TenaPay Daily Summary "+date, body)
}
