package core

// Settings represents the main runtime configuration for the service
type Settings struct {
	Symbols  []string         // Futures symbols to scan; empty means all USDT perpetuals
	Telegram TelegramSettings // Telegram integration settings
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled   bool   // Whether Telegram publishing is enabled
	Token     string // Telegram bot token
	ChannelID string // Channel the alerts are published to
	Admins    []int  // Authorized operator user IDs
}
