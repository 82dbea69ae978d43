package bot

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"apartments-bot/db"
	"apartments-bot/models"
	"apartments-bot/scheduler"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxMessageLen = 4096

// listingCaption renders a listing as HTML for a photo caption or message
func listingCaption(l models.Listing) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "🏠 <b>%s</b>\n", html.EscapeString(l.Plan))
	fmt.Fprintf(&sb, "💰 %s €\n", groupThousands(l.Price))
	fmt.Fprintf(&sb, "📐 %s m²\n", strconv.FormatFloat(l.SqMeters, 'f', -1, 64))
	fmt.Fprintf(&sb, "🚪 Rooms: %d\n", l.RoomsCount)
	fmt.Fprintf(&sb, "🏢 Floor: %d\n", l.Floor)

	if l.Status != "" {
		fmt.Fprintf(&sb, "📌 %s\n", html.EscapeString(l.Status))
	}
	if tags := decodeTags(l.Tag); len(tags) > 0 {
		fmt.Fprintf(&sb, "🏷 %s\n", html.EscapeString(strings.Join(tags, ", ")))
	}

	if l.ProjectLink != "" {
		fmt.Fprintf(&sb, "🏗 <a href=\"%s\">%s</a>\n", html.EscapeString(l.ProjectLink), html.EscapeString(l.ProjectName))
	} else {
		fmt.Fprintf(&sb, "🏗 %s\n", html.EscapeString(l.ProjectName))
	}
	if l.Link != "" {
		fmt.Fprintf(&sb, "🔗 <a href=\"%s\">View apartment</a>", html.EscapeString(l.Link))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// groupThousands formats a whole-euro amount as "120 000"
func groupThousands(v float64) string {
	digits := strconv.FormatInt(int64(v+0.5), 10)
	if len(digits) <= 3 {
		return digits
	}

	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// syncMessage describes the outcome of a sync for a chat reply
func syncMessage(res scheduler.Result, err error) string {
	switch {
	case err != nil:
		return fmt.Sprintf("❌ Error during sync: %v", err)
	case res.Status == db.RunEmpty && !res.Replaced:
		return "❌ No apartments found during sync, keeping the previous data"
	case res.Status == db.RunEmpty:
		return "⚠️ No apartments found during sync, the database is now empty"
	default:
		return fmt.Sprintf("✅ Sync completed: %d apartments saved in %s", len(res.Listings), res.Duration.Round(time.Second))
	}
}

func statusMessage(count int, last *scheduler.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Apartments stored: %d\n", count)
	if last == nil {
		sb.WriteString("No sync has run since the bot started.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Last sync (%s) at %s: %s", last.Source, last.StartedAt.Format("2006-01-02 15:04"), syncMessage(*last, last.Err))
	return sb.String()
}

// webhookMessage describes the delivery mode. The bot token in the webhook
// path is never echoed back.
func webhookMessage(info tgbotapi.WebhookInfo) string {
	if !info.IsSet() {
		return "📡 No webhook set, updates are received by long polling"
	}

	url := info.URL
	if i := strings.LastIndex(url, "/bot"); i >= 0 {
		url = url[:i] + "/bot<token>"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔗 Webhook: %s\n", url)
	fmt.Fprintf(&sb, "Pending updates: %d", info.PendingUpdateCount)
	if info.LastErrorMessage != "" {
		fmt.Fprintf(&sb, "\nLast error: %s", info.LastErrorMessage)
		if info.LastErrorDate > 0 {
			fmt.Fprintf(&sb, " (%s)", time.Unix(int64(info.LastErrorDate), 0).UTC().Format("2006-01-02 15:04"))
		}
	}
	return sb.String()
}

// splitMessage splits a message into chunks of at most maxLen characters,
// breaking on line boundaries where possible
func splitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0
	// open is set once the chunk holds a line, even an empty one
	open := false

	flush := func() {
		if open {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
			open = false
		}
	}

	for _, line := range strings.Split(text, "\n") {
		lineLen := utf8.RuneCountInString(line)

		// If a single line is longer than maxLen, split it
		if lineLen > maxLen {
			flush()
			runes := []rune(line)
			for len(runes) > maxLen {
				chunks = append(chunks, string(runes[:maxLen]))
				runes = runes[maxLen:]
			}
			current.WriteString(string(runes))
			currentLen = len(runes)
			open = true
			continue
		}

		if open && currentLen+1+lineLen > maxLen {
			flush()
		}
		if open {
			current.WriteByte('\n')
			currentLen++
		}
		current.WriteString(line)
		currentLen += lineLen
		open = true
	}
	flush()

	return chunks
}
