package config

func Defaults() *Config {
	return &Config{
		Twitter: TwitterConfig{
			CommandStartCharacter: "!",
		},
		Sonarr: SonarrConfig{
			ServiceConfig: ServiceConfig{Host: "localhost", Port: 8989},
			// 720p/1080p profile in a stock install
			ProfileID: 6,
		},
		CouchPotato: CouchPotatoConfig{
			ServiceConfig: ServiceConfig{Host: "localhost", Port: 5050},
			ProfileID:     "ed59153d41b148cd827607ddc5d1530e",
			CategoryID:    "-1",
		},
		SAB: ServiceConfig{Host: "localhost", Port: 8080},
		Inbox: InboxConfig{
			Provider:       ProviderTwitter,
			PollInterval:   120,
			FetchLimit:     50,
			RequestTimeout: 30,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  "dmcontrol.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
