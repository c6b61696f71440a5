package config

// Defaults returns the stock configuration: open contact policy, local
// backend, metrics off.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			StateDir: "~/.salonbot",
			LogLevel: "info",
		},
		Contacts: ContactsConfig{},
		Backend: BackendConfig{
			BaseURL:             "http://localhost:8000",
			TimeoutSeconds:      30,
			MediaTimeoutSeconds: 60,
		},
		WhatsApp: WhatsAppConfig{
			SessionDB:             "~/.salonbot/session.db",
			QRImagePath:           "~/.salonbot/qr.png",
			ReconnectDelaySeconds: 2,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9090",
		},
	}
}
