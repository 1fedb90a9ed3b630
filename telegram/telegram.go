package telegram

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func EscapeMessage(message string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(message)
}

// NotifyMilestone sends a fire-and-forget ops message (new look generated,
// try-on completed, generation failed) to the admin chat. Errors are logged
// and swallowed: the bot must never affect the request path.
func NotifyMilestone(message string) {
	token := os.Getenv("TG_TOKEN")
	chatIDRaw := os.Getenv("TG_ADMIN_CHAT_ID")
	if token == "" || chatIDRaw == "" {
		return
	}
	chatID, err := strconv.ParseInt(chatIDRaw, 10, 64)
	if err != nil {
		fmt.Println("Invalid TG_ADMIN_CHAT_ID:", chatIDRaw)
		return
	}

	go func() {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			fmt.Println("Error tg bot init", err)
			return
		}
		msg := tgbotapi.NewMessage(chatID, EscapeMessage(message))
		msg.ParseMode = "markdown"
		if _, err := bot.Send(msg); err != nil {
			fmt.Println("Error sending tg milestone:", err)
		}
	}()
}
