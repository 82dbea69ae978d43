package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"apartments-bot/filter"
	"apartments-bot/models"
	"apartments-bot/scheduler"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of the Telegram API the bot uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// webhookInfoer is implemented by *tgbotapi.BotAPI
type webhookInfoer interface {
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// Store answers listing queries
type Store interface {
	Query(ctx context.Context, f filter.Filter, s filter.Sort) ([]models.Listing, error)
	Projects(ctx context.Context, f filter.Filter) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Syncer runs a scrape-and-replace cycle
type Syncer interface {
	Sync(ctx context.Context, source string) (scheduler.Result, error)
	Last() *scheduler.Result
}

// Options configures the bot
type Options struct {
	// AllowedUserIDs restricts the bot to these users; empty allows everyone
	AllowedUserIDs []int64
	AdminChatID    int64
	MaxResults     int
	Rooms          []int
}

// Bot handles Telegram updates
type Bot struct {
	api     Sender
	store   Store
	syncer  Syncer
	allowed map[int64]bool
	opts    Options
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New creates a new Bot
func New(api Sender, store Store, syncer Syncer, opts Options, logger *slog.Logger) *Bot {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 30
	}
	if len(opts.Rooms) == 0 {
		opts.Rooms = []int{2, 3, 4}
	}

	allowed := make(map[int64]bool, len(opts.AllowedUserIDs))
	for _, id := range opts.AllowedUserIDs {
		allowed[id] = true
	}

	return &Bot{
		api:     api,
		store:   store,
		syncer:  syncer,
		allowed: allowed,
		opts:    opts,
		logger:  logger,
	}
}

func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowed) == 0 || b.allowed[userID]
}

// Poll receives updates with long polling until ctx is done
func (b *Bot) Poll(ctx context.Context, api *tgbotapi.BotAPI) {
	// Start from the latest update to skip ones sent while offline
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.Offset = -1

	updates := api.GetUpdatesChan(updateConfig)
	defer api.StopReceivingUpdates()

	b.logger.Info("polling for updates", "account", api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

// WebhookHandler serves updates pushed by Telegram
func (b *Bot) WebhookHandler(ctx context.Context, api *tgbotapi.BotAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := api.HandleUpdate(r)
		if err != nil {
			b.logger.Warn("invalid webhook update", "err", err)
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}
		// Acknowledge right away; syncs can take minutes
		w.WriteHeader(http.StatusOK)
		b.dispatch(ctx, *update)
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("panic while handling update", "update_id", update.UpdateID, "panic", r)
			}
		}()
		b.HandleUpdate(ctx, update)
	}()
}

// Wait blocks until in-flight updates are handled
func (b *Bot) Wait() {
	b.wg.Wait()
}

// HandleUpdate processes one update synchronously
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if !b.isAllowed(userID) {
		b.logger.Warn("unauthorized user", "user_id", userID)
		b.sendText(chatID, "Sorry, you are not authorized to use this bot.")
		return
	}

	if !msg.IsCommand() {
		b.sendText(chatID, "Use /start to browse apartments or /help for the list of commands.")
		return
	}

	b.logger.Info("command received", "command", msg.Command(), "user_id", userID)
	switch msg.Command() {
	case "start":
		b.sendText(chatID, "🔄 Syncing and loading apartments...")
		res, err := b.syncer.Sync(ctx, scheduler.SourceCommand)
		if err != nil {
			// The previous snapshot is still there to browse
			b.sendText(chatID, syncMessage(res, err))
		}
		b.sendRoomsMenu(chatID)
	case "sync":
		b.sendText(chatID, "🔄 Starting sync process...")
		res, err := b.syncer.Sync(ctx, scheduler.SourceCommand)
		b.sendText(chatID, syncMessage(res, err))
	case "browse":
		b.sendRoomsMenu(chatID)
	case "status":
		b.sendStatus(ctx, chatID)
	case "webhook":
		b.sendWebhookInfo(chatID)
	case "test":
		b.sendText(chatID, "👋 Hello! The bot is working!")
	case "help":
		b.sendText(chatID, helpText)
	default:
		b.sendText(chatID, "Unknown command. Use /help for the list of commands.")
	}
}

const helpText = `Commands:
/start - Sync apartments and choose filters
/browse - Choose filters without syncing
/sync - Fetch the latest apartments now
/status - Show stored apartments and the last sync
/webhook - Show how updates are delivered
/test - Check that the bot is alive
/help - Show this help`

func (b *Bot) sendStatus(ctx context.Context, chatID int64) {
	count, err := b.store.Count(ctx)
	if err != nil {
		b.logger.Error("failed to count apartments", "err", err)
		b.sendText(chatID, "❌ Failed to read the database")
		return
	}
	b.sendText(chatID, statusMessage(count, b.syncer.Last()))
}

func (b *Bot) sendWebhookInfo(chatID int64) {
	api, ok := b.api.(webhookInfoer)
	if !ok {
		b.sendText(chatID, "Webhook info is not available")
		return
	}
	info, err := api.GetWebhookInfo()
	if err != nil {
		b.logger.Error("failed to get webhook info", "err", err)
		b.sendText(chatID, "❌ Failed to get webhook info")
		return
	}
	b.sendText(chatID, webhookMessage(info))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}

	if !b.isAllowed(cb.From.ID) {
		b.logger.Warn("unauthorized callback", "user_id", cb.From.ID)
		b.request(tgbotapi.NewCallback(cb.ID, "Sorry, you are not authorized."))
		return
	}

	// Acknowledge callback
	b.request(tgbotapi.NewCallback(cb.ID, ""))

	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	action, err := parseCallback(cb.Data)
	if err != nil {
		b.logger.Warn("bad callback data", "data", cb.Data, "err", err)
		return
	}

	switch action.kind {
	case actionBack:
		b.editMenu(chatID, messageID, roomsPrompt, roomsKeyboard(b.opts.Rooms))
	case actionRooms:
		b.showProjects(ctx, chatID, messageID, action.rooms)
	case actionProject:
		b.editMenu(chatID, messageID, sortPrompt, sortKeyboard(action.rooms, action.project))
	case actionSort:
		b.sendListings(ctx, chatID, action)
	}
}

func (b *Bot) showProjects(ctx context.Context, chatID int64, messageID int, rooms int) {
	projects, err := b.store.Projects(ctx, filter.Rooms(rooms))
	if err != nil {
		b.logger.Error("failed to list projects", "err", err)
		b.sendText(chatID, "❌ Failed to read the database")
		return
	}
	if len(projects) == 0 {
		b.editMenu(chatID, messageID, fmt.Sprintf("No %d-room apartments available right now.", rooms), backKeyboard())
		return
	}
	b.editMenu(chatID, messageID, projectPrompt, projectsKeyboard(rooms, projects))
}

func (b *Bot) sendListings(ctx context.Context, chatID int64, action callbackAction) {
	f := filter.Rooms(action.rooms)
	if action.project != allProjects {
		// Projects are addressed by position in the list the keyboard was built from
		projects, err := b.store.Projects(ctx, filter.Rooms(action.rooms))
		if err != nil {
			b.logger.Error("failed to list projects", "err", err)
			b.sendText(chatID, "❌ Failed to read the database")
			return
		}
		if action.project >= len(projects) {
			b.sendText(chatID, "The project list has changed, please choose again.")
			b.sendRoomsMenu(chatID)
			return
		}
		f.ProjectName = projects[action.project]
	}

	listings, err := b.store.Query(ctx, f, action.sort)
	if err != nil {
		b.logger.Error("failed to query apartments", "err", err)
		b.sendText(chatID, "❌ Failed to read the database")
		return
	}

	if len(listings) == 0 {
		b.sendText(chatID, "No apartments match these parameters.")
	} else {
		shown := listings
		if len(shown) > b.opts.MaxResults {
			shown = shown[:b.opts.MaxResults]
		}
		for _, l := range shown {
			if err := ctx.Err(); err != nil {
				return
			}
			b.sendListing(chatID, l)
		}
		if len(shown) < len(listings) {
			b.sendText(chatID, fmt.Sprintf("Showing %d of %d apartments. Narrow the filters to see the rest.", len(shown), len(listings)))
		}
	}

	msg := tgbotapi.NewMessage(chatID, nextPrompt)
	msg.ReplyMarkup = nextKeyboard(action.rooms, action.project)
	b.send(msg)
}

// sendListing sends a photo with caption, falling back to text
func (b *Bot) sendListing(chatID int64, l models.Listing) {
	caption := listingCaption(l)

	if l.ImageURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(l.ImageURL))
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeHTML
		_, err := b.api.Send(photo)
		if err == nil {
			return
		}
		b.logger.Warn("failed to send photo, falling back to text", "plan", l.Plan, "err", err)
	}

	msg := tgbotapi.NewMessage(chatID, caption)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	b.send(msg)
}

func (b *Bot) sendRoomsMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, roomsPrompt)
	msg.ReplyMarkup = roomsKeyboard(b.opts.Rooms)
	b.send(msg)
}

func (b *Bot) editMenu(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard))
}

// sendText sends text, split into chunks that fit the message limit
func (b *Bot) sendText(chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		// Telegram rejects blank messages
		if strings.TrimSpace(part) == "" {
			continue
		}
		b.send(tgbotapi.NewMessage(chatID, part))
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn("failed to send telegram message", "err", err)
	}
}

func (b *Bot) request(c tgbotapi.Chattable) {
	if _, err := b.api.Request(c); err != nil {
		b.logger.Debug("telegram request failed", "err", err)
	}
}

// Notify sends text to the admin chat, if one is configured
func (b *Bot) Notify(text string) {
	if b.opts.AdminChatID == 0 {
		return
	}
	b.sendText(b.opts.AdminChatID, text)
}

// ReportResult tells the admin how a run nobody asked for in chat went
func (b *Bot) ReportResult(res scheduler.Result) {
	if res.Source == scheduler.SourceCommand {
		return
	}
	b.Notify(fmt.Sprintf("[%s] %s", res.Source, syncMessage(res, res.Err)))
}
