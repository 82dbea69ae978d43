package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"apartments-bot/db"
	"apartments-bot/filter"
	"apartments-bot/models"
	"apartments-bot/scheduler"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	requests  []tgbotapi.Chattable
	failPhoto bool
	webhook   tgbotapi.WebhookInfo
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := c.(tgbotapi.PhotoConfig); ok && f.failPhoto {
		return tgbotapi.Message{}, errors.New("Bad Request: wrong file identifier/HTTP URL specified")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return f.webhook, nil
}

// texts returns the text of every plain message sent
func (f *fakeSender) texts() []string {
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeSyncer struct {
	res   scheduler.Result
	err   error
	calls int
	last  *scheduler.Result
}

func (f *fakeSyncer) Sync(ctx context.Context, source string) (scheduler.Result, error) {
	f.calls++
	f.res.Source = source
	return f.res, f.err
}

func (f *fakeSyncer) Last() *scheduler.Result { return f.last }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore(t *testing.T) *db.MemoryStore {
	t.Helper()
	store := db.NewMemoryStore()
	require.NoError(t, store.ReplaceAll(context.Background(), []models.Listing{
		{ProjectName: "Strēlnieku", RoomsCount: 2, Price: 120000, SqMeters: 48.5, Plan: "A", ImageURL: "https://img.example/a.jpg"},
		{ProjectName: "Jaunciems", RoomsCount: 2, Price: 87000, SqMeters: 52, Plan: "B"},
		{ProjectName: "Jaunciems", RoomsCount: 3, Price: 98000, SqMeters: 71.2, Plan: "C"},
	}))
	return store
}

func newTestBot(t *testing.T, opts Options) (*Bot, *fakeSender, *fakeSyncer) {
	sender := &fakeSender{}
	syncer := &fakeSyncer{res: scheduler.Result{Status: db.RunDone, Listings: make([]models.Listing, 3), Replaced: true}}
	return New(sender, seededStore(t), syncer, opts, testLogger()), sender, syncer
}

func command(userID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: 100},
		From:     &tgbotapi.User{ID: userID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 100}},
		Data:    data,
	}}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data string
		want callbackAction
	}{
		{"back", callbackAction{kind: actionBack, project: allProjects}},
		{"rooms:3", callbackAction{kind: actionRooms, rooms: 3, project: allProjects}},
		{"proj:2:all", callbackAction{kind: actionProject, rooms: 2, project: allProjects}},
		{"proj:2:4", callbackAction{kind: actionProject, rooms: 2, project: 4}},
		{"sort:4:1:sqMeters:desc", callbackAction{
			kind: actionSort, rooms: 4, project: 1,
			sort: filter.Sort{Field: filter.SortSqMeters, Order: filter.Desc},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := parseCallback(tt.data)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(callbackAction{})); diff != "" {
				t.Fatalf("parseCallback mismatch (-want +got):\n%s", diff)
			}
			// Encoding is the inverse of parsing
			require.Equal(t, tt.data, got.data())
		})
	}

	for _, bad := range []string{"", "rooms", "rooms:x", "rooms:0", "proj:2:-1", "sort:2:all:floor:asc", "sort:2:all:price", "nuke:1"} {
		_, err := parseCallback(bad)
		require.Error(t, err, bad)
	}
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	a := callbackAction{kind: actionSort, rooms: 12, project: 999, sort: filter.Sort{Field: filter.SortSqMeters, Order: filter.Desc}}
	require.LessOrEqual(t, len(a.data()), 64)
}

func TestProjectsKeyboard(t *testing.T) {
	kb := projectsKeyboard(2, []string{"Jaunciems", "Strēlnieku"})
	require.Len(t, kb.InlineKeyboard, 4)
	require.Equal(t, "All projects", kb.InlineKeyboard[0][0].Text)
	require.Equal(t, "proj:2:all", *kb.InlineKeyboard[0][0].CallbackData)
	require.Equal(t, "Strēlnieku", kb.InlineKeyboard[2][0].Text)
	require.Equal(t, "proj:2:1", *kb.InlineKeyboard[2][0].CallbackData)
	require.Equal(t, "back", *kb.InlineKeyboard[3][0].CallbackData)
}

func TestUnauthorizedUser(t *testing.T) {
	b, sender, syncer := newTestBot(t, Options{AllowedUserIDs: []int64{1}})

	b.HandleUpdate(context.Background(), command(2, "/sync"))
	require.Zero(t, syncer.calls)
	require.Equal(t, []string{"Sorry, you are not authorized to use this bot."}, sender.texts())

	b.HandleUpdate(context.Background(), callback(2, "rooms:2"))
	require.Len(t, sender.sent, 1)
	require.Len(t, sender.requests, 1)
}

func TestSyncCommand(t *testing.T) {
	b, sender, syncer := newTestBot(t, Options{})
	b.HandleUpdate(context.Background(), command(1, "/sync"))
	require.Equal(t, 1, syncer.calls)
	texts := sender.texts()
	require.Len(t, texts, 2)
	require.Contains(t, texts[1], "Sync completed: 3 apartments")

	syncer.res = scheduler.Result{Status: db.RunEmpty}
	b.HandleUpdate(context.Background(), command(1, "/sync"))
	require.Contains(t, sender.texts()[3], "No apartments found")

	syncer.err = errors.New("catalog grid not found")
	b.HandleUpdate(context.Background(), command(1, "/sync"))
	require.Contains(t, sender.texts()[5], "Error during sync: catalog grid not found")
}

func TestStartSyncsThenShowsRooms(t *testing.T) {
	b, sender, syncer := newTestBot(t, Options{Rooms: []int{1, 2}})
	syncer.err = errors.New("boom")

	b.HandleUpdate(context.Background(), command(1, "/start"))
	require.Equal(t, 1, syncer.calls)

	last := sender.sent[len(sender.sent)-1].(tgbotapi.MessageConfig)
	require.Equal(t, roomsPrompt, last.Text)
	kb := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, kb.InlineKeyboard, 2)
	require.Equal(t, "rooms:1", *kb.InlineKeyboard[0][0].CallbackData)
}

func TestRoomsCallbackListsProjects(t *testing.T) {
	b, sender, _ := newTestBot(t, Options{})
	b.HandleUpdate(context.Background(), callback(1, "rooms:2"))

	require.Len(t, sender.requests, 1)
	edit := sender.sent[0].(tgbotapi.EditMessageTextConfig)
	require.Equal(t, 9, edit.MessageID)
	require.Equal(t, projectPrompt, edit.Text)
	// All projects, two projects, back
	require.Len(t, edit.ReplyMarkup.InlineKeyboard, 4)

	b.HandleUpdate(context.Background(), callback(1, "rooms:5"))
	edit = sender.sent[1].(tgbotapi.EditMessageTextConfig)
	require.Contains(t, edit.Text, "No 5-room apartments")
}

func TestSortCallbackSendsListings(t *testing.T) {
	b, sender, _ := newTestBot(t, Options{})

	// Project 0 among the sorted 2-room projects is Jaunciems
	b.HandleUpdate(context.Background(), callback(1, "sort:2:0:price:asc"))
	require.Len(t, sender.sent, 2)
	msg := sender.sent[0].(tgbotapi.MessageConfig)
	require.Contains(t, msg.Text, "<b>B</b>")
	require.Equal(t, nextPrompt, sender.sent[1].(tgbotapi.MessageConfig).Text)

	sender.sent = nil
	b.HandleUpdate(context.Background(), callback(1, "sort:2:all:price:desc"))
	require.Len(t, sender.sent, 3)
	photo := sender.sent[0].(tgbotapi.PhotoConfig)
	require.Contains(t, photo.Caption, "<b>A</b>")
	require.Contains(t, sender.sent[1].(tgbotapi.MessageConfig).Text, "<b>B</b>")
}

func TestSortCallbackEdgeCases(t *testing.T) {
	b, sender, _ := newTestBot(t, Options{MaxResults: 1})

	b.HandleUpdate(context.Background(), callback(1, "sort:2:all:price:asc"))
	require.Contains(t, sender.texts(), "Showing 1 of 2 apartments. Narrow the filters to see the rest.")

	sender.sent = nil
	b.HandleUpdate(context.Background(), callback(1, "sort:3:7:price:asc"))
	require.Equal(t, "The project list has changed, please choose again.", sender.texts()[0])

	sender.sent = nil
	b.HandleUpdate(context.Background(), callback(1, "sort:4:all:price:asc"))
	require.Equal(t, "No apartments match these parameters.", sender.texts()[0])
}

func TestPhotoFailureFallsBackToText(t *testing.T) {
	b, sender, _ := newTestBot(t, Options{})
	sender.failPhoto = true

	b.sendListing(100, models.Listing{Plan: "A", ImageURL: "https://img.example/broken.jpg"})
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0].(tgbotapi.MessageConfig)
	require.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	require.Contains(t, msg.Text, "<b>A</b>")
}

func TestReportResult(t *testing.T) {
	b, sender, _ := newTestBot(t, Options{AdminChatID: 555})

	b.ReportResult(scheduler.Result{Source: scheduler.SourceCommand, Status: db.RunDone})
	require.Empty(t, sender.sent)

	b.ReportResult(scheduler.Result{Source: scheduler.SourceSchedule, Status: db.RunFailed, Err: errors.New("timeout")})
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0].(tgbotapi.MessageConfig)
	require.Equal(t, int64(555), msg.ChatID)
	require.Equal(t, "[schedule] ❌ Error during sync: timeout", msg.Text)
}

func TestListingCaption(t *testing.T) {
	got := listingCaption(models.Listing{
		ProjectName: "Strēlnieku <1>",
		ProjectLink: "https://www.bonava.lv/strelnieku",
		Price:       120000,
		SqMeters:    48.5,
		RoomsCount:  2,
		Floor:       3,
		Plan:        "A-12",
		Link:        "https://www.bonava.lv/a12",
		Status:      "Pārdošanā",
		Tag:         `["Jaunums","Akcija"]`,
	})
	want := strings.Join([]string{
		"🏠 <b>A-12</b>",
		"💰 120 000 €",
		"📐 48.5 m²",
		"🚪 Rooms: 2",
		"🏢 Floor: 3",
		"📌 Pārdošanā",
		"🏷 Jaunums, Akcija",
		`🏗 <a href="https://www.bonava.lv/strelnieku">Strēlnieku &lt;1&gt;</a>`,
		`🔗 <a href="https://www.bonava.lv/a12">View apartment</a>`,
	}, "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("caption mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupThousands(t *testing.T) {
	require.Equal(t, "0", groupThousands(0))
	require.Equal(t, "999", groupThousands(999))
	require.Equal(t, "1 000", groupThousands(1000))
	require.Equal(t, "87 000", groupThousands(87000))
	require.Equal(t, "1 234 568", groupThousands(1234567.6))
}

func TestSplitMessage(t *testing.T) {
	require.Equal(t, []string{"short"}, splitMessage("short", 10))

	got := splitMessage("aaaa\nbbbb\ncccc", 9)
	require.Equal(t, []string{"aaaa\nbbbb", "cccc"}, got)

	// Long lines are cut by characters, not bytes
	got = splitMessage(strings.Repeat("ā", 7), 3)
	require.Equal(t, []string{"āāā", "āāā", "ā"}, got)

	// Blank lines at a chunk boundary are kept
	got = splitMessage("aaaa\n\nbb", 4)
	require.Equal(t, []string{"aaaa", "\nbb"}, got)

	for _, text := range []string{"aaaa\n\nbb", "a\n\n\n\nb\n", "\n\n\n\n\n\n"} {
		require.Equal(t, text, strings.Join(splitMessage(text, 4), "\n"), text)
	}
}

func TestSendTextSkipsBlankParts(t *testing.T) {
	b, sender, _ := newTestBot(t, Options{})
	text := strings.Repeat("x", maxMessageLen) + "\n\n"
	b.sendText(100, text)
	require.Equal(t, []string{strings.Repeat("x", maxMessageLen)}, sender.texts())
}

func TestStatusMessage(t *testing.T) {
	require.Contains(t, statusMessage(0, nil), "No sync has run")

	last := &scheduler.Result{
		Source:    scheduler.SourceSchedule,
		Status:    db.RunDone,
		Listings:  make([]models.Listing, 5),
		StartedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
	}
	msg := statusMessage(5, last)
	require.Contains(t, msg, "Apartments stored: 5")
	require.Contains(t, msg, "Last sync (schedule) at 2026-03-01 00:00: ✅ Sync completed: 5 apartments saved in 1m30s")
}

func TestWebhookCommand(t *testing.T) {
	b, sender, _ := newTestBot(t, Options{})
	b.HandleUpdate(context.Background(), command(1, "/webhook"))
	require.Equal(t, []string{"📡 No webhook set, updates are received by long polling"}, sender.texts())

	sender.webhook = tgbotapi.WebhookInfo{URL: "https://example.com/bot123:secret", PendingUpdateCount: 2}
	b.HandleUpdate(context.Background(), command(1, "/webhook"))
	texts := sender.texts()
	require.Len(t, texts, 2)
	require.NotContains(t, texts[1], "secret")
	require.Contains(t, texts[1], "https://example.com/bot<token>")
}

func TestWebhookMessage(t *testing.T) {
	msg := webhookMessage(tgbotapi.WebhookInfo{
		URL:                "https://bot.example.com/hooks/bot123456:ABC-def",
		PendingUpdateCount: 4,
		LastErrorDate:      int(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC).Unix()),
		LastErrorMessage:   "Connection timed out",
	})
	require.Equal(t, "🔗 Webhook: https://bot.example.com/hooks/bot<token>\nPending updates: 4\nLast error: Connection timed out (2026-03-01 12:30)", msg)
}
