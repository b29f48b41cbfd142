package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"testing"

	"github.com/PaulFidika/verifykit/core"
	"github.com/stretchr/testify/require"
)

func TestLogSender_NeverLogsCode(t *testing.T) {
	var buf bytes.Buffer
	l := LogSender{Log: slog.New(slog.NewTextHandler(&buf, nil))}

	err := l.Send(context.Background(), "alice@co.com", core.Message{Kind: core.MessageOTP, Purpose: core.PurposeEmailVerification, Code: "123456", Body: "Your code is 123456"})
	require.NoError(t, err)
	require.NotContains(t, buf.String(), "123456")
	require.NotContains(t, buf.String(), "alice@co.com")
	require.Contains(t, buf.String(), "a***@co.com")
}

func TestOutbox_KeepsLatest(t *testing.T) {
	o := NewOutbox(2)
	ctx := context.Background()
	for _, c := range []string{"1", "2", "3"} {
		require.NoError(t, o.Send(ctx, "a@b.co", core.Message{Code: c}))
	}
	require.Equal(t, 2, o.Count("a@b.co"))
	d, ok := o.Latest("a@b.co")
	require.True(t, ok)
	require.Equal(t, "3", d.Msg.Code)

	_, ok = o.Latest("nobody@b.co")
	require.False(t, ok)
}

type failing struct{}

func (failing) Send(context.Context, string, core.Message) error { return errors.New("down") }

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	o := NewOutbox(0)
	err := Multi{failing{}, o, nil}.Send(context.Background(), "a@b.co", core.Message{Code: "9"})
	require.Error(t, err)
	require.Equal(t, 1, o.Count("a@b.co"))
}

func TestSMTPSender_RendersLink(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.local", From: "noreply@co.com"})
	var got []byte
	var gotAddr string
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, got = addr, msg
		require.Nil(t, a)
		require.Equal(t, []string{"bob@co.com"}, to)
		return nil
	}
	err := s.Send(context.Background(), "bob@co.com", core.Message{Subject: "You have been invited", Body: "Join us.", Link: "https://app/invitations/accept?token=x"})
	require.NoError(t, err)
	require.Equal(t, "smtp.local:587", gotAddr)
	require.Contains(t, string(got), "To: bob@co.com\r\n")
	require.Contains(t, string(got), "https://app/invitations/accept?token=x")
}
