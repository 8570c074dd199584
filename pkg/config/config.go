package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App           App           `yaml:"app"`
	Database      Database      `yaml:"database"`
	Allows        Allows        `yaml:"allows"`
	Storage       Storage       `yaml:"storage"`
	RateLimit     RateLimit     `yaml:"rateLimit"`
	Broadcast     Broadcast     `yaml:"broadcast"`
	Scraper       Scraper       `yaml:"scraper"`
	AutoReply     AutoReply     `yaml:"autoReply"`
	Collaborators Collaborators `yaml:"collaborators"`
}

type App struct {
	Name string `yaml:"name"`
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type Database struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	Name string `yaml:"name"`
}

type Allows struct {
	Methods []string `yaml:"methods"`
	Origins []string `yaml:"origins"`
	Headers []string `yaml:"headers"`
}

type Storage struct {
	SessionPath string `yaml:"sessionPath"`
	MediaPath   string `yaml:"mediaPath"`
}

type RateLimit struct {
	MessagesPerMinute     int   `yaml:"messagesPerMinute"`
	MessagesPerHour       int   `yaml:"messagesPerHour"`
	MessagesPerDay        int   `yaml:"messagesPerDay"`
	MinDelayMs            int64 `yaml:"minDelayMs"`
	MaxDelayMs            int64 `yaml:"maxDelayMs"`
	CooldownAfterMessages int   `yaml:"cooldownAfterMessages"`
	CooldownDurationMs    int64 `yaml:"cooldownDurationMs"`
}

type Broadcast struct {
	BatchSize     int   `yaml:"batchSize"`
	BatchDelayMs  int64 `yaml:"batchDelayMs"`
	MaxRecipients int   `yaml:"maxRecipients"`
}

type Scraper struct {
	MaxScrapesPerDay        int   `yaml:"maxScrapesPerDay"`
	CooldownBetweenScrapes  int   `yaml:"cooldownBetweenScrapesMin"`
	MaxContactsPerScrape    int   `yaml:"maxContactsPerScrape"`
	ContactsPerBatch        int   `yaml:"contactsPerBatch"`
	BatchSaveDelayMs        int64 `yaml:"batchSaveDelayMs"`
	MinDelayBetweenGroupsMs int64 `yaml:"minDelayBetweenGroupsMs"`
	MaxDelayBetweenGroupsMs int64 `yaml:"maxDelayBetweenGroupsMs"`
}

type AutoReply struct {
	HistoryWindow      int `yaml:"historyWindow"`
	NotifyFreshnessMin int `yaml:"notifyFreshnessMin"`
	AppendFreshnessMin int `yaml:"appendFreshnessMin"`
}

type Collaborators struct {
	OpenAI     OpenAI     `yaml:"openai"`
	RajaOngkir RajaOngkir `yaml:"rajaongkir"`
}

type OpenAI struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseUrl"`
}

type RajaOngkir struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
}

func InitConfig() *Config {
	var configs Config
	file_name, _ := filepath.Abs("./config.yaml")
	yaml_file, _ := os.ReadFile(file_name)
	yaml.Unmarshal(yaml_file, &configs)

	// Override with environment variables if they exist (for Docker)
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		configs.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		configs.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		configs.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		configs.Database.Pass = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		configs.Database.Name = dbName
	}

	// Override app configuration with environment variables
	if appHost := os.Getenv("APP_HOST"); appHost != "" {
		configs.App.Host = appHost
	}
	if appPort := os.Getenv("APP_PORT"); appPort != "" {
		configs.App.Port = appPort
	}
	if appName := os.Getenv("APP_NAME"); appName != "" {
		configs.App.Name = appName
	}

	if sessionPath := os.Getenv("SESSION_STORAGE_PATH"); sessionPath != "" {
		configs.Storage.SessionPath = sessionPath
	}
	if mediaPath := os.Getenv("MEDIA_STORAGE_PATH"); mediaPath != "" {
		configs.Storage.MediaPath = mediaPath
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		configs.Collaborators.OpenAI.APIKey = key
	}
	if key := os.Getenv("RAJAONGKIR_API_KEY"); key != "" {
		configs.Collaborators.RajaOngkir.APIKey = key
	}

	configs.applyDefaults()

	return &configs
}

func (c *Config) applyDefaults() {
	if c.Storage.SessionPath == "" {
		c.Storage.SessionPath = "./storage/sessions"
	}
	if c.Storage.MediaPath == "" {
		c.Storage.MediaPath = "./storage/media"
	}

	rl := &c.RateLimit
	if rl.MessagesPerMinute == 0 {
		rl.MessagesPerMinute = 10
	}
	if rl.MessagesPerHour == 0 {
		rl.MessagesPerHour = 100
	}
	if rl.MessagesPerDay == 0 {
		rl.MessagesPerDay = 1000
	}
	if rl.MinDelayMs == 0 {
		rl.MinDelayMs = 2000
	}
	if rl.MaxDelayMs == 0 {
		rl.MaxDelayMs = 5000
	}
	if rl.CooldownAfterMessages == 0 {
		rl.CooldownAfterMessages = 50
	}
	if rl.CooldownDurationMs == 0 {
		rl.CooldownDurationMs = 300000
	}

	b := &c.Broadcast
	if b.BatchSize == 0 {
		b.BatchSize = 20
	}
	if b.BatchDelayMs == 0 {
		b.BatchDelayMs = 60000
	}
	if b.MaxRecipients == 0 {
		b.MaxRecipients = 10000
	}

	s := &c.Scraper
	if s.MaxScrapesPerDay == 0 {
		s.MaxScrapesPerDay = 3
	}
	if s.CooldownBetweenScrapes == 0 {
		s.CooldownBetweenScrapes = 60
	}
	if s.MaxContactsPerScrape == 0 {
		s.MaxContactsPerScrape = 1000
	}
	if s.ContactsPerBatch == 0 {
		s.ContactsPerBatch = 50
	}
	if s.BatchSaveDelayMs == 0 {
		s.BatchSaveDelayMs = 2000
	}
	if s.MinDelayBetweenGroupsMs == 0 {
		s.MinDelayBetweenGroupsMs = 5000
	}
	if s.MaxDelayBetweenGroupsMs == 0 {
		s.MaxDelayBetweenGroupsMs = 12000
	}

	ar := &c.AutoReply
	if ar.HistoryWindow == 0 {
		ar.HistoryWindow = 10
	}
	if ar.NotifyFreshnessMin == 0 {
		ar.NotifyFreshnessMin = 5
	}
	if ar.AppendFreshnessMin == 0 {
		ar.AppendFreshnessMin = 30
	}

	if c.Collaborators.OpenAI.Model == "" {
		c.Collaborators.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Collaborators.OpenAI.BaseURL == "" {
		c.Collaborators.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.Collaborators.RajaOngkir.BaseURL == "" {
		c.Collaborators.RajaOngkir.BaseURL = "https://api.rajaongkir.com/starter"
	}
}
