package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:           "info",
			LogFormat:          "text",
			FFmpegPath:         "ffmpeg",
			MaxBlockLength:     500,
			HTTPTimeoutSeconds: 120,
			BusBuffer:          100,
		},
		Backend: BackendConfig{
			ResponseMode: "blocking",
		},
		Speech: SpeechConfig{
			SpeakerID: "63b409bb241a82001d51c710",
			Speed:     1.25,
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:     true,
				WebhookPath: "/webhook/whatsapp",
				GraphBase:   "https://graph.facebook.com/v21.0",
			},
			Telegram: TelegramConfig{
				Enabled:            false,
				PollTimeoutSeconds: 60,
			},
		},
		AudioRequestPhrases: []string{
			"responda em áudio",
			"responda em audio",
			"me responda em áudio",
			"me responda em audio",
		},
		Dedup: DedupConfig{
			Enabled:  true,
			DBPath:   "~/.difyrelay/dedup.db",
			TTLHours: 48,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
