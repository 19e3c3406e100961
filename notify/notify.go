// Package notify e-mails employees when a punch is recorded.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"sync"
	"time"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/config"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxRetries = 3

var actionLabels = map[attendance.Action]string{
	attendance.ActionClockIn:  "entrada",
	attendance.ActionLunchOut: "saída para o almoço",
	attendance.ActionLunchIn:  "volta do almoço",
	attendance.ActionClockOut: "saída",
}

// Punch is what the employee is told about.
type Punch struct {
	EmployeeName string
	Email        string
	Action       attendance.Action
	Record       attendance.Record
}

type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Notifier struct {
	cfg       config.SMTPConfig
	company   string
	loc       *time.Location
	templates *template.Template
	log       *slog.Logger

	send    SendFunc
	backoff func(attempt int) time.Duration
	wg      sync.WaitGroup
}

type Option func(*Notifier)

// WithSender replaces smtp.SendMail.
func WithSender(fn SendFunc) Option { return func(n *Notifier) { n.send = fn } }

func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(n *Notifier) { n.backoff = fn }
}

func New(cfg config.SMTPConfig, company string, loc *time.Location, logger *slog.Logger, opts ...Option) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		cfg:       cfg,
		company:   company,
		loc:       loc,
		templates: tmpl,
		log:       logger.With("component", "notify"),
		send:      smtp.SendMail,
		backoff:   func(attempt int) time.Duration { return time.Duration(1<<(attempt-1)) * time.Second },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Enabled reports whether an SMTP host is configured.
func (n *Notifier) Enabled() bool { return n.cfg.Host != "" }

type punchEmailData struct {
	Company      string
	EmployeeName string
	ActionLabel  string
	Date         string
	Time         string
	ClockIn      string
	LunchOut     string
	LunchIn      string
	ClockOut     string
	TotalHours   string
	Balance      string
}

func (n *Notifier) render(p Punch) (string, error) {
	fmtTime := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.In(n.loc).Format("15:04")
	}
	at := p.Record.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	data := punchEmailData{
		Company:      n.company,
		EmployeeName: p.EmployeeName,
		ActionLabel:  actionLabels[p.Action],
		Date:         p.Record.Date.Time.Format("02/01/2006"),
		Time:         at.In(n.loc).Format("15:04"),
		ClockIn:      fmtTime(p.Record.ClockIn),
		LunchOut:     fmtTime(p.Record.LunchOut),
		LunchIn:      fmtTime(p.Record.LunchIn),
		ClockOut:     fmtTime(p.Record.ClockOut),
		TotalHours:   p.Record.TotalHours.StringFixed(2),
		Balance:      p.Record.AccumulatedBalance.StringFixed(2),
	}
	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, "punch.html", data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return body.String(), nil
}

// PunchRecorded sends the confirmation e-mail. Without an SMTP host or a
// recipient it logs and returns nil.
func (n *Notifier) PunchRecorded(ctx context.Context, p Punch) error {
	if !n.Enabled() || p.Email == "" {
		n.log.DebugContext(ctx, "punch e-mail skipped", "employee_id", p.Record.EmployeeID, "smtp", n.Enabled())
		return nil
	}
	body, err := n.render(p)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s: %s registrada", n.company, actionLabels[p.Action])
	return n.sendHTML(ctx, p.Email, subject, body)
}

// Async sends in the background. Errors are logged only.
func (n *Notifier) Async(ctx context.Context, p Punch) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.PunchRecorded(context.WithoutCancel(ctx), p); err != nil {
			n.log.Error("punch e-mail failed", "employee_id", p.Record.EmployeeID, "error", err)
		}
	}()
}

// Wait blocks until every pending send finishes or ctx is done. Sends
// still running when ctx ends are abandoned.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending e-mails not sent: %w", ctx.Err())
	}
}

func (n *Notifier) sendHTML(ctx context.Context, to, subject, htmlBody string) error {
	from := n.cfg.From
	headers := fmt.Sprintf("From: %s <%s>\r\n", n.cfg.FromName, from)
	headers += fmt.Sprintf("To: %s\r\n", to)
	headers += fmt.Sprintf("Subject: %s\r\n", subject)
	headers += "MIME-Version: 1.0\r\n"
	headers += "Content-Type: text/html; charset=\"UTF-8\"\r\n"
	headers += "\r\n"
	message := []byte(headers + htmlBody)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := n.send(addr, auth, from, []string{to}, message)
		if err == nil {
			n.log.InfoContext(ctx, "email sent", "to", to, "attempt", attempt)
			return nil
		}
		lastErr = err
		n.log.WarnContext(ctx, "email send failed",
			"to", to,
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", err,
		)
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.backoff(attempt)):
			}
		}
	}
	return fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, lastErr)
}
