package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrobot/internal/domain"
	"hydrobot/internal/registry"
	"hydrobot/internal/reminder"
	"hydrobot/internal/storage"
	logx "hydrobot/pkg/logx"
)

type env struct {
	ad  *fakeAdapter
	m   *Manager
	svc *reminder.Service
	h   *Hydration
}

func newEnv(t *testing.T, flowTimeout time.Duration) *env {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir() + "/bot"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ad := newFakeAdapter()
	svc := reminder.NewService(registry.New(st), st, logx.Nop())
	h := NewHydration(svc, ad, flowTimeout, logx.Nop())
	t.Cleanup(h.Close)
	m := NewManager(logx.Nop(), ad, nil, []int64{1}, Options{})
	m.SetRoutes(h.Commands(), h.Callbacks())
	return &env{ad: ad, m: m, svc: svc, h: h}
}

func buttons(t *testing.T, msg sentMsg) []string {
	t.Helper()
	require.NotNil(t, msg.Markup)
	var out []string
	for _, row := range msg.Markup.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}

func TestRegisterFlow(t *testing.T) {
	e := newEnv(t, time.Minute)

	dispatch(e.m, text(42, "/register"))
	prompt := e.ad.last(t)
	data := buttons(t, prompt)
	require.Len(t, data, 3)
	assert.True(t, strings.HasPrefix(data[1], "reg:choose:"))
	assert.True(t, strings.HasSuffix(data[1], ".medium"))

	dispatch(e.m, press("other", 43, 1, data[1]))
	assert.Equal(t, notOwnerChoice, e.ad.answer("other"))
	assert.Zero(t, e.svc.ActiveSubscriberCount())

	dispatch(e.m, press("cb", 42, 1, data[1]))
	sub, ok := e.svc.Subscriber(42)
	require.True(t, ok)
	assert.Equal(t, domain.Medium, sub.Frequency)
	assert.Equal(t, 1, e.ad.editCount())

	dispatch(e.m, press("late", 42, 1, data[0]))
	assert.Equal(t, expiredChoice, e.ad.answer("late"))
	sub, _ = e.svc.Subscriber(42)
	assert.Equal(t, domain.Medium, sub.Frequency)
}

func TestRegisterFlowTimeout(t *testing.T) {
	e := newEnv(t, 30*time.Millisecond)

	dispatch(e.m, text(7, "/register"))
	data := buttons(t, e.ad.last(t))

	require.Eventually(t, func() bool { return e.ad.editCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, e.ad.edits[0].Text, "expired")

	dispatch(e.m, press("cb", 7, 1, data[0]))
	assert.Equal(t, expiredChoice, e.ad.answer("cb"))
	assert.Zero(t, e.svc.ActiveSubscriberCount())
}

func TestUnregisterAndStatus(t *testing.T) {
	e := newEnv(t, time.Minute)
	ctx := context.Background()

	dispatch(e.m, text(9, "/unregister"))
	assert.Equal(t, "You are not registered.", e.ad.last(t).Text)

	_, err := e.svc.Register(ctx, 9, "x", domain.Long)
	require.NoError(t, err)
	dispatch(e.m, text(9, "/status"))
	assert.Contains(t, e.ad.last(t).Text, "3 hours")
	assert.Contains(t, e.ad.last(t).Text, "Active subscribers: 1")

	dispatch(e.m, text(9, "/unregister"))
	assert.Contains(t, e.ad.last(t).Text, "no longer")
	assert.Zero(t, e.svc.ActiveSubscriberCount())
}

func TestCustomMessageCommands(t *testing.T) {
	e := newEnv(t, time.Minute)

	dispatch(e.m, text(2, "/addmsg short Hydrate!"))
	assert.Contains(t, e.ad.last(t).Text, "reserved")

	dispatch(e.m, text(1, "/addmsg hourly Hydrate!"))
	assert.Contains(t, e.ad.last(t).Text, "Invalid message type")

	dispatch(e.m, text(1, "/addmsg short"))
	assert.Contains(t, e.ad.last(t).Text, "Missing message text")

	dispatch(e.m, text(1, "/addmsg short Hydrate!\nNow <please>"))
	assert.Contains(t, e.ad.last(t).Text, "Custom message saved")
	list, err := e.svc.ListCustomMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Hydrate!\nNow <please>", list[0].Text)

	dispatch(e.m, text(5, "/listmsg"))
	assert.Contains(t, e.ad.last(t).Text, "Hydrate!\nNow &lt;please&gt;")

	dispatch(e.m, text(1, "/removemsg short"))
	assert.Contains(t, e.ad.last(t).Text, "removed")
	dispatch(e.m, text(1, "/removemsg short"))
	assert.Contains(t, e.ad.last(t).Text, "No custom message")

	dispatch(e.m, text(5, "/listmsg"))
	assert.Contains(t, e.ad.last(t).Text, "No custom message is set")
}

func TestListTruncatesLongTexts(t *testing.T) {
	e := newEnv(t, time.Minute)
	_, err := e.svc.AddCustomMessage(context.Background(), 1, "long", strings.Repeat("w", 2000))
	require.NoError(t, err)

	dispatch(e.m, text(5, "/listmsg"))
	out := e.ad.last(t).Text
	assert.Contains(t, out, strings.Repeat("w", 1024)+"…")
	assert.NotContains(t, out, strings.Repeat("w", 1025))
}
