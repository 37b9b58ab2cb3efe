package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linesrv/internal/metrics"
	"linesrv/internal/retry"
	"linesrv/internal/store"
)

type reply struct {
	text, tag string
}

// recorder captures replies instead of writing them to a connection.
type recorder struct {
	replies []reply
	err     error
}

func (r *recorder) SendMessage(text, tag string) error {
	if r.err != nil {
		return r.err
	}
	r.replies = append(r.replies, reply{text, tag})
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "uid"))
	return NewDispatcher(nil, Options{Store: st}), st
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDispatch_CaseInsensitive(t *testing.T) {
	d, _ := newTestDispatcher(t)

	for _, line := range []string{"help", "HELP", "Help", "hElP extra args"} {
		t.Run(line, func(t *testing.T) {
			w := &recorder{}
			require.NoError(t, d.Dispatch(context.Background(), w, line))
			require.Len(t, w.replies, 1)
			assert.Equal(t, helpText, w.replies[0].text)
			assert.Empty(t, w.replies[0].tag)
		})
	}
}

func TestDispatch_Motd(t *testing.T) {
	d, _ := newTestDispatcher(t)
	w := &recorder{}

	require.NoError(t, d.Dispatch(context.Background(), w, "MOTD"))
	require.Len(t, w.replies, 1)
	assert.Equal(t, motdText, w.replies[0].text)
}

func TestDispatch_UnknownIsSilent(t *testing.T) {
	d, st := newTestDispatcher(t)

	for _, line := range []string{"", "frobnicate", " help", "quit", "mail #001-000", "LIBRARY"} {
		w := &recorder{}
		require.NoError(t, d.Dispatch(context.Background(), w, line))
		assert.Empty(t, w.replies, "line %q", line)
	}
	assert.Empty(t, listDir(t, st.Root()))
}

func TestDispatch_SMS(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantDir  bool
		wantBody string
		wantBad  bool
	}{
		{name: "with body", line: "sms #001-000 Hello there", wantDir: true, wantBody: "Hello there"},
		{name: "upper case command", line: "SMS #001-000 hi", wantDir: true, wantBody: "hi"},
		{name: "no body", line: "sms #001-000", wantDir: true},
		{name: "empty first body token", line: "sms #001-000  late words", wantDir: true},
		{name: "body keeps inner spaces", line: "sms #001-000 a  b", wantDir: true, wantBody: "a  b"},
		{name: "missing address", line: "sms", wantBad: true},
		{name: "malformed address", line: "sms badaddr", wantBad: true},
		{name: "letters in id", line: "sms #abc-000 hi", wantBad: true},
		{name: "wrong suffix", line: "sms #001-001 hi", wantBad: true},
		{name: "too long", line: "sms #0001-000 hi", wantBad: true},
		{name: "double space before address", line: "sms  #001-000 hi", wantBad: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st := newTestDispatcher(t)
			w := &recorder{}

			require.NoError(t, d.Dispatch(context.Background(), w, tt.line))

			if tt.wantBad {
				require.Len(t, w.replies, 1)
				assert.Equal(t, reply{MsgBadAddress, ServerTag}, w.replies[0])
				assert.Empty(t, listDir(t, st.Root()), "nothing may be created")
				return
			}

			assert.Empty(t, w.replies, "success is silent")
			assert.DirExists(t, st.Dir("001"))
			files := listDir(t, st.Dir("001"))
			if tt.wantBody == "" {
				assert.Empty(t, files)
				return
			}
			require.Len(t, files, 1)
			assert.Regexp(t, `^\d+\.txt$`, files[0])
			data, err := os.ReadFile(filepath.Join(st.Dir("001"), files[0]))
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(data))
		})
	}
}

func TestDispatch_SMSStorageFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uid")
	require.NoError(t, os.WriteFile(root, nil, 0o644))

	m := metrics.New()
	cb := retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	d := NewDispatcher(nil, Options{Store: store.New(root), Breaker: cb, Metrics: m})

	for i := 0; i < 2; i++ {
		w := &recorder{}
		require.NoError(t, d.Dispatch(context.Background(), w, "sms #001-000 hi"))
		require.Len(t, w.replies, 1)
		assert.Equal(t, reply{MsgStorageUnavailable, ServerTag}, w.replies[0])
	}

	assert.Equal(t, retry.StateOpen, cb.CurrentState())
	assert.Equal(t, int64(2), m.Snapshot().Errors[metrics.ErrorStorage])
}

func TestDispatch_SMSCancelled(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, &recorder{}, "sms #001-000 hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, st.Root()))
}

func TestDispatch_ResponderErrorPropagates(t *testing.T) {
	d, _ := newTestDispatcher(t)
	boom := errors.New("broken pipe")

	err := d.Dispatch(context.Background(), &recorder{err: boom}, "help")
	assert.ErrorIs(t, err, boom)
}

func TestDispatch_Registered(t *testing.T) {
	reg := NewRegistry()
	var got []string
	require.NoError(t, reg.Register("Echo", HandlerFunc(func(_ context.Context, w Responder, args []string) error {
		got = args
		return w.SendMessage(args[1], ServerTag)
	})))

	d := NewDispatcher(reg, Options{Store: store.New(t.TempDir())})
	w := &recorder{}
	require.NoError(t, d.Dispatch(context.Background(), w, "ECHO hello  world"))

	assert.Equal(t, []string{"ECHO", "hello", "", "world"}, got, "tokens are passed unmodified")
	assert.Equal(t, []reply{{"hello", ServerTag}}, w.replies)
}

func TestDispatch_ReplacePlaceholder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Replace("mail", HandlerFunc(func(_ context.Context, w Responder, _ []string) error {
		return w.SendMessage("Mail Time!", ServerTag)
	})))

	d := NewDispatcher(reg, Options{Store: store.New(t.TempDir())})
	w := &recorder{}
	require.NoError(t, d.Dispatch(context.Background(), w, "mail"))
	assert.Equal(t, []reply{{"Mail Time!", ServerTag}}, w.replies)
}

func TestDispatch_HelpListsDescribedCommands(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Replace("page", Describe(noop, "Page another user.")))
	require.NoError(t, reg.Replace("library", Describe(noop, "Browse the library.")))

	d := NewDispatcher(reg, Options{Store: store.New(t.TempDir())})
	w := &recorder{}
	require.NoError(t, d.Dispatch(context.Background(), w, "help"))

	require.Len(t, w.replies, 1)
	assert.Equal(t, helpText+
		"\r\nLIBRARY: Browse the library."+
		"\r\nPAGE: Page another user.", w.replies[0].text)
}

func TestDispatch_Metrics(t *testing.T) {
	m := metrics.New()
	d := NewDispatcher(nil, Options{Store: store.New(t.TempDir()), Metrics: m})

	for _, line := range []string{"help", "HELP", "motd", "bogus", "sms bad"} {
		require.NoError(t, d.Dispatch(context.Background(), &recorder{}, line))
	}

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Commands["help"])
	assert.Equal(t, int64(1), snap.Commands["motd"])
	assert.Equal(t, int64(1), snap.Commands["unknown"])
	assert.Equal(t, int64(1), snap.Errors[metrics.ErrorArgument])
	n, err := testutil.GatherAndCount(m.Registry(), "linesrv_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "help, motd, sms and unknown")
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr string
		uid  string
		ok   bool
	}{
		{"#001-000", "001", true},
		{"#999-000", "999", true},
		{"#000-000", "000", true},
		{"", "", false},
		{"001-000", "", false},
		{"#01-000", "", false},
		{"#001-0000", "", false},
		{"#001-000 ", "", false},
		{"#١٢٣-000", "", false},
	}
	for _, tt := range tests {
		uid, ok := ParseAddress(tt.addr)
		assert.Equal(t, tt.ok, ok, "addr %q", tt.addr)
		assert.Equal(t, tt.uid, uid, "addr %q", tt.addr)
	}
}
