package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/config"
	"github.com/tempreco/ponto/notify"
)

type recorder struct {
	mu    sync.Mutex
	calls int
	fail  int
	msgs  []string
	to    []string
}

func (r *recorder) send(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.fail {
		return errors.New("connection refused")
	}
	r.msgs = append(r.msgs, string(msg))
	r.to = append(r.to, to...)
	return nil
}

var (
	quiet   = slog.New(slog.NewTextHandler(io.Discard, nil))
	brt     = time.FixedZone("BRT", -3*60*60)
	smtpCfg = config.SMTPConfig{Host: "smtp.test", Port: 587, From: "ponto@tempreco.com.br", FromName: "Ponto"}
)

func samplePunch() notify.Punch {
	day := attendance.NewDay(2025, time.March, 10)
	in := day.At(8, 0, brt)
	rec := attendance.NewRecord(attendance.RecordKey{EmployeeID: "e1", Date: day}, decimal.NewFromInt(2))
	rec.ClockIn = &in
	rec.Status = attendance.StatusClockedIn
	rec.UpdatedAt = in
	return notify.Punch{EmployeeName: "João", Email: "joao@tempreco.com.br", Action: attendance.ActionClockIn, Record: rec}
}

func newNotifier(t *testing.T, cfg config.SMTPConfig, r *recorder) *notify.Notifier {
	t.Helper()
	n, err := notify.New(cfg, "TEM PREÇO", brt, quiet,
		notify.WithSender(r.send),
		notify.WithBackoff(func(int) time.Duration { return time.Millisecond }))
	require.NoError(t, err)
	return n
}

func TestPunchRecorded_SendsRenderedEmail(t *testing.T) {
	r := &recorder{}
	n := newNotifier(t, smtpCfg, r)

	require.NoError(t, n.PunchRecorded(context.Background(), samplePunch()))

	require.Len(t, r.msgs, 1)
	assert.Equal(t, []string{"joao@tempreco.com.br"}, r.to)
	assert.Contains(t, r.msgs[0], "Subject: TEM PREÇO: entrada registrada")
	assert.Contains(t, r.msgs[0], "Olá, João.")
	assert.Contains(t, r.msgs[0], "10/03/2025 às 08:00")
	assert.Contains(t, r.msgs[0], "2.00")
}

func TestPunchRecorded_RetriesThenGivesUp(t *testing.T) {
	// GIVEN: a server that fails twice
	r := &recorder{fail: 2}
	n := newNotifier(t, smtpCfg, r)

	// WHEN / THEN: the third attempt succeeds
	require.NoError(t, n.PunchRecorded(context.Background(), samplePunch()))
	assert.Equal(t, 3, r.calls)

	// GIVEN: a server that is down
	r = &recorder{fail: 10}
	n = newNotifier(t, smtpCfg, r)
	err := n.PunchRecorded(context.Background(), samplePunch())
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.Equal(t, 3, r.calls)
}

func TestPunchRecorded_SkipsWithoutHost(t *testing.T) {
	r := &recorder{}
	n := newNotifier(t, config.SMTPConfig{}, r)

	assert.False(t, n.Enabled())
	require.NoError(t, n.PunchRecorded(context.Background(), samplePunch()))
	assert.Zero(t, r.calls)
}

func TestAsync(t *testing.T) {
	r := &recorder{fail: 10}
	n := newNotifier(t, smtpCfg, r)

	n.Async(context.Background(), samplePunch())
	require.NoError(t, n.Wait(context.Background()))
	assert.Equal(t, 3, r.calls)
}

func TestWait_BoundedByContext(t *testing.T) {
	// GIVEN: an SMTP server that never answers
	release := make(chan struct{})
	n, err := notify.New(smtpCfg, "TEM PREÇO", brt, quiet,
		notify.WithSender(func(string, smtp.Auth, string, []string, []byte) error {
			<-release
			return nil
		}))
	require.NoError(t, err)
	n.Async(context.Background(), samplePunch())

	// WHEN: shutdown only allows a short wait
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = n.Wait(ctx)

	// THEN: Wait gives up instead of blocking
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, n.Wait(context.Background()))
}
