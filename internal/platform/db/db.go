package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const (
	driverName     = "mysql"
	configFilePath = "config/config.yaml"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	TTLHours   int    `yaml:"ttl_hours"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LabConfig は1研究室スキーマ分の設定。
// labs の並び順がそのままブロッカー整列の固定順序になる。
type LabConfig struct {
	Schema string `yaml:"schema"`
	Name   string `yaml:"name"`
}

type ClearanceConfig struct {
	// 未払い判定の閾値。解決済みでも cost がこれを超えて未払いならブロッカー扱い
	UnpaidCostThreshold  float64 `yaml:"unpaid_cost_threshold"`
	AutoResolveAfterDays int     `yaml:"auto_resolve_after_days"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type Config struct {
	Version     string          `yaml:"version"`
	Mode        string          `yaml:"mode"`
	DB          DatabaseConfig  `yaml:"database"`
	Redis       RedisConfig     `yaml:"redis"`
	Session     SessionConfig   `yaml:"session"`
	Auth        AuthConfig      `yaml:"auth"`
	Labs        []LabConfig     `yaml:"labs"`
	Clearance   ClearanceConfig `yaml:"clearance"`
	Certificate Certs           `yaml:"certificate"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}

	// 秘密系は環境変数優先（.env 経由。yamlへ直書きしない運用）
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	if len(cfg.Labs) == 0 {
		return nil, fmt.Errorf("labs が未設定")
	}
	return &cfg, nil
}

// LabSchemas は設定順のままスキーマ名一覧を返す
func (c *Config) LabSchemas() []string {
	out := make([]string, 0, len(c.Labs))
	for _, l := range c.Labs {
		out = append(out, l.Schema)
	}
	return out
}

// HasLab はスキーマ名がホワイトリストに含まれるか
func (c *Config) HasLab(schema string) bool {
	for _, l := range c.Labs {
		if l.Schema == schema {
			return true
		}
	}
	return false
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
