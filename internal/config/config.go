package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     Server     `koanf:"server"`
	Store      Store      `koanf:"store"`
	OxiDB      OxiDB      `koanf:"oxidb"`
	Blob       Blob       `koanf:"blob"`
	Auth       Auth       `koanf:"auth"`
	SuperAdmin SuperAdmin `koanf:"super_admin"`
	RateLimit  RateLimit  `koanf:"ratelimit"`
	Log        Log        `koanf:"log"`
}

type Server struct {
	Addr           string        `koanf:"addr"             env:"OXIFORMS_ADDR"             validate:"required"`
	ReadTimeout    time.Duration `koanf:"read_timeout"     env:"OXIFORMS_READ_TIMEOUT"     validate:"gt=0"`
	WriteTimeout   time.Duration `koanf:"write_timeout"    env:"OXIFORMS_WRITE_TIMEOUT"    validate:"gt=0"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes" env:"OXIFORMS_MAX_UPLOAD_BYTES" validate:"gt=0"`
}

type Store struct {
	Driver  string        `koanf:"driver"  env:"OXIFORMS_STORE_DRIVER"  validate:"oneof=sqlite postgres oxidb"`
	DSN     string        `koanf:"dsn"     env:"OXIFORMS_STORE_DSN"`
	Timeout time.Duration `koanf:"timeout" env:"OXIFORMS_STORE_TIMEOUT" validate:"gt=0"`
}

type OxiDB struct {
	Host     string `koanf:"host"      env:"OXIDB_HOST"`
	Port     int    `koanf:"port"      env:"OXIDB_PORT"          validate:"gt=0,lt=65536"`
	PoolSize int    `koanf:"pool_size" env:"OXIFORMS_POOL_SIZE"  validate:"gt=0"`
}

type Blob struct {
	Driver            string        `koanf:"driver"             env:"OXIFORMS_BLOB_DRIVER"      validate:"oneof=fs oxidb"`
	Dir               string        `koanf:"dir"                env:"OXIFORMS_BLOB_DIR"`
	Bucket            string        `koanf:"bucket"             env:"OXIFORMS_BLOB_BUCKET"`
	Timeout           time.Duration `koanf:"timeout"            env:"OXIFORMS_BLOB_TIMEOUT"     validate:"gt=0"`
	UploadConcurrency int           `koanf:"upload_concurrency" env:"OXIFORMS_UPLOAD_CONCURRENCY" validate:"gt=0"`
}

type Auth struct {
	JWTSecret  string        `koanf:"jwt_secret"  env:"OXIFORMS_JWT_SECRET" validate:"required,min=16"`
	TokenTTL   time.Duration `koanf:"token_ttl"   env:"OXIFORMS_TOKEN_TTL"  validate:"gt=0"`
	BcryptCost int           `koanf:"bcrypt_cost" env:"OXIFORMS_BCRYPT_COST" validate:"gte=4,lte=31"`
}

type SuperAdmin struct {
	Email    string `koanf:"email"    env:"OXIFORMS_SUPER_ADMIN_EMAIL"    validate:"omitempty,email"`
	Password string `koanf:"password" env:"OXIFORMS_SUPER_ADMIN_PASSWORD"`
}

type RateLimit struct {
	SubmitPerMinute int64  `koanf:"submit_per_minute" env:"OXIFORMS_SUBMIT_PER_MINUTE" validate:"gte=0"`
	RedisURL        string `koanf:"redis_url"         env:"OXIFORMS_REDIS_URL"`
}

type Log struct {
	Level    string `koanf:"level"     env:"OXIFORMS_LOG_LEVEL" validate:"oneof=debug info warn error"`
	JSON     bool   `koanf:"json"      env:"OXIFORMS_LOG_JSON"`
	GelfAddr string `koanf:"gelf_addr" env:"OXIFORMS_GELF_ADDR"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Addr:           ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxUploadBytes: 12 << 20,
		},
		Store: Store{
			Driver:  "sqlite",
			DSN:     "file:oxiforms.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
			Timeout: 5 * time.Second,
		},
		OxiDB: OxiDB{
			Host:     "127.0.0.1",
			Port:     4444,
			PoolSize: 3,
		},
		Blob: Blob{
			Driver:            "fs",
			Dir:               "data/blobs",
			Bucket:            "oxiforms_files",
			Timeout:           15 * time.Second,
			UploadConcurrency: 4,
		},
		Auth: Auth{
			JWTSecret:  "oxiforms-dev-secret-change-me",
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
		},
		RateLimit: RateLimit{SubmitPerMinute: 30},
		Log:       Log{Level: "info"},
	}
}

// Load builds the configuration from defaults, an optional dotenv file and
// the process environment, in that order of precedence.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	mappings := envMappings()
	err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			path, ok := mappings[key]
			if !ok {
				return "", nil
			}
			return path, value
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	if cfg.Store.Driver != "oxidb" && cfg.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required for driver %q", cfg.Store.Driver)
	}
	if cfg.Blob.Driver == "fs" && cfg.Blob.Dir == "" {
		return fmt.Errorf("config: blob.dir is required for the fs driver")
	}
	if cfg.Blob.Driver == "oxidb" && cfg.Blob.Bucket == "" {
		return fmt.Errorf("config: blob.bucket is required for the oxidb driver")
	}
	if (cfg.SuperAdmin.Email == "") != (cfg.SuperAdmin.Password == "") {
		return fmt.Errorf("config: super_admin.email and super_admin.password must be set together")
	}
	return nil
}

// envMappings walks the env struct tags: OXIFORMS_STORE_DSN -> store.dsn.
func envMappings() map[string]string {
	out := map[string]string{}
	walkEnv(reflect.TypeOf(Config{}), "", out)
	return out
}

func walkEnv(t reflect.Type, prefix string, out map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("koanf")
		if key == "" || key == "-" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct && f.Type.PkgPath() != "time" {
			walkEnv(f.Type, path, out)
			continue
		}
		if e := strings.TrimSpace(f.Tag.Get("env")); e != "" {
			out[e] = path
		}
	}
}
