package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/userrelay/internal/security/password"
	"github.com/dropDatabas3/userrelay/internal/validation"
)

type Config struct {
	App struct {
		Env         string `yaml:"env" validate:"oneof=dev prod test"`
		LogLevel    string `yaml:"log_level"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"app"`

	Server struct {
		Addr               string        `yaml:"addr" validate:"required"`
		ReadTimeout        time.Duration `yaml:"read_timeout"`
		WriteTimeout       time.Duration `yaml:"write_timeout"`
		IdleTimeout        time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
		MaxBodyBytes       int64         `yaml:"max_body_bytes" validate:"gte=0"`
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Directory DirectoryConfig `yaml:"directory"`
	Backend   BackendConfig   `yaml:"backend"`
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// Schemas con nombre: "default" (TUser/UserId) y "alt" (users/id) siempre existen.
	Schemas map[string]SchemaConfig `yaml:"schemas" validate:"dive"`

	Rate struct {
		Enabled     bool          `yaml:"enabled"`
		Kind        string        `yaml:"kind" validate:"oneof=memory redis"`
		Window      time.Duration `yaml:"window"`
		MaxRequests int           `yaml:"max_requests" validate:"gte=0"`
		Redis       struct {
			Addr     string `yaml:"addr"`
			DB       int    `yaml:"db"`
			Password string `yaml:"password"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"rate"`

	Admin struct {
		// APIKey habilita X-Admin-API-Key. JWTSecret habilita Bearer HS256.
		// Sin ninguno de los dos las rutas quedan abiertas (solo dev).
		APIKey       string `yaml:"api_key"`
		JWTSecret    string `yaml:"jwt_secret"`
		JWTIssuer    string `yaml:"jwt_issuer"`
		RequiredRole string `yaml:"required_role"`
	} `yaml:"admin"`

	SMTP struct {
		Enabled            bool   `yaml:"enabled"`
		Host               string `yaml:"host" validate:"required_if=Enabled true"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from" validate:"required_if=Enabled true"`
		TLS                string `yaml:"tls" validate:"oneof=auto starttls ssl none"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
		// LoginURL se incluye en el mail de bienvenida si no está vacío.
		LoginURL string `yaml:"login_url"`
	} `yaml:"smtp"`

	Security struct {
		// SecretBoxKey descifra backend_key_enc en el directorio (base64 32 bytes).
		SecretBoxKey string `yaml:"secretbox_key"`
	} `yaml:"security"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

type DirectoryConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=postgres fs rest"`
	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
		Table    string `yaml:"table" validate:"sqlident"`
	} `yaml:"postgres"`
	FS struct {
		Path string `yaml:"path"`
	} `yaml:"fs"`
	// REST apunta a un registro estilo PostgREST (p.ej. el proyecto central de Supabase).
	REST struct {
		URL       string        `yaml:"url"`
		Key       string        `yaml:"key"`
		Table     string        `yaml:"table" validate:"sqlident"`
		IDColumn  string        `yaml:"id_column" validate:"sqlident"`
		URLColumn string        `yaml:"url_column" validate:"sqlident"`
		KeyColumn string        `yaml:"key_column" validate:"sqlident"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"rest"`
}

type BackendConfig struct {
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// PoolIdleTTL: conectores sin uso se cierran pasado este tiempo.
	PoolIdleTTL time.Duration `yaml:"pool_idle_ttl"`
	PGMaxConns  int32         `yaml:"pg_max_conns" validate:"gte=0"`
	// PGIdentityTable es la tabla de identidades en backends postgres.
	PGIdentityTable string `yaml:"pg_identity_table" validate:"sqlident"`
}

type ReconcileConfig struct {
	TempPassword     string   `yaml:"temp_password" validate:"required"`
	EmailAliases     []string `yaml:"email_aliases" validate:"min=1"`
	ScanPageSize     int      `yaml:"scan_page_size" validate:"gt=0,lte=1000"`
	ScanMaxPages     int      `yaml:"scan_max_pages" validate:"gt=0"`
	OnProfileFailure string   `yaml:"on_profile_failure" validate:"oneof=keep rollback"`
	DeleteTable      string   `yaml:"delete_table" validate:"required,sqlident"`
	DeleteIDColumn   string   `yaml:"delete_id_column" validate:"required,sqlident"`
	NotifyOnCreate   bool     `yaml:"notify_on_create"`
}

type SchemaConfig struct {
	Table        string   `yaml:"table" validate:"required,sqlident"`
	ConflictKey  string   `yaml:"conflict_key" validate:"required,sqlident"`
	Fields       []string `yaml:"fields"`
	// EmailAliases reemplaza reconcile.email_aliases para este schema.
	EmailAliases []string `yaml:"email_aliases"`
}

// Load lee el YAML (opcional: path vacío o inexistente = solo defaults), aplica env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.ServiceName == "" {
		c.App.ServiceName = "userrelay"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	if c.Directory.Driver == "" {
		c.Directory.Driver = "fs"
	}
	if c.Directory.FS.Path == "" {
		c.Directory.FS.Path = "./data/tenants.yaml"
	}
	if c.Directory.Postgres.Table == "" {
		c.Directory.Postgres.Table = "tenant_directory"
	}
	r := &c.Directory.REST
	if r.Table == "" {
		r.Table = "Tproyects"
	}
	if r.IDColumn == "" {
		r.IDColumn = "ProyectId"
	}
	if r.URLColumn == "" {
		r.URLColumn = "ProyectURL"
	}
	if r.KeyColumn == "" {
		r.KeyColumn = "ProyectServiceRole"
	}
	if r.Timeout == 0 {
		r.Timeout = 10 * time.Second
	}

	if c.Backend.HTTPTimeout == 0 {
		c.Backend.HTTPTimeout = 15 * time.Second
	}
	if c.Backend.PoolIdleTTL == 0 {
		c.Backend.PoolIdleTTL = 10 * time.Minute
	}
	if c.Backend.PGMaxConns == 0 {
		c.Backend.PGMaxConns = 4
	}
	if c.Backend.PGIdentityTable == "" {
		c.Backend.PGIdentityTable = "auth_identity"
	}

	rc := &c.Reconcile
	if rc.TempPassword == "" {
		rc.TempPassword = "Temp123!"
	}
	if len(rc.EmailAliases) == 0 {
		rc.EmailAliases = []string{"correoElectronico", "Email", "correo", "email"}
	}
	if rc.ScanPageSize == 0 {
		rc.ScanPageSize = 1000
	}
	if rc.ScanMaxPages == 0 {
		rc.ScanMaxPages = 50
	}
	if rc.OnProfileFailure == "" {
		rc.OnProfileFailure = "keep"
	}
	if rc.DeleteTable == "" {
		rc.DeleteTable = "users"
	}
	if rc.DeleteIDColumn == "" {
		rc.DeleteIDColumn = "id"
	}

	if c.Schemas == nil {
		c.Schemas = map[string]SchemaConfig{}
	}
	if _, ok := c.Schemas["default"]; !ok {
		c.Schemas["default"] = SchemaConfig{
			Table:        "TUser",
			ConflictKey:  "UserId",
			Fields:       []string{"Email", "NameUser", "Phone", "CompanyId", "RoleId", "Area"},
			EmailAliases: []string{"Email"},
		}
	}
	if _, ok := c.Schemas["alt"]; !ok {
		c.Schemas["alt"] = SchemaConfig{
			Table:        "users",
			ConflictKey:  "id",
			Fields:       []string{"correoElectronico", "nombreCompleto", "celular", "empresa", "rol"},
			EmailAliases: []string{"correoElectronico"},
		}
	}

	if c.Rate.Kind == "" {
		c.Rate.Kind = "memory"
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 120
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "userrelay:rl:"
	}

	if c.Admin.RequiredRole == "" {
		c.Admin.RequiredRole = "admin"
	}

	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	// SERVER (PORT se mantiene por compat con los despliegues existentes)
	if v, ok := getEnvStr("PORT"); ok {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// DIRECTORY
	if v, ok := getEnvStr("DIRECTORY_DRIVER"); ok {
		c.Directory.Driver = v
	}
	if v, ok := getEnvStr("DIRECTORY_DSN"); ok {
		c.Directory.Postgres.DSN = v
	}
	if v, ok := getEnvStr("DIRECTORY_FS_PATH"); ok {
		c.Directory.FS.Path = v
	}
	// Nombres heredados del proyecto central en Supabase.
	if v, ok := getEnvStr("SUPABASE_URL"); ok {
		c.Directory.REST.URL = v
	}
	if v, ok := getEnvStr("SUPABASE_SERVICE_ROLE_KEY"); ok {
		c.Directory.REST.Key = v
	}
	if v, ok := getEnvStr("DIRECTORY_REST_URL"); ok {
		c.Directory.REST.URL = v
	}
	if v, ok := getEnvStr("DIRECTORY_REST_KEY"); ok {
		c.Directory.REST.Key = v
	}

	// BACKEND
	if v, ok := getEnvDur("BACKEND_HTTP_TIMEOUT"); ok {
		c.Backend.HTTPTimeout = v
	}
	if v, ok := getEnvDur("BACKEND_POOL_IDLE_TTL"); ok {
		c.Backend.PoolIdleTTL = v
	}
	if v, ok := getEnvInt("BACKEND_PG_MAX_CONNS"); ok {
		c.Backend.PGMaxConns = int32(v)
	}

	// RECONCILE
	if v, ok := getEnvStr("RECONCILE_TEMP_PASSWORD"); ok {
		c.Reconcile.TempPassword = v
	}
	if v, ok := getEnvCSV("RECONCILE_EMAIL_ALIASES"); ok && len(v) > 0 {
		c.Reconcile.EmailAliases = v
	}
	if v, ok := getEnvStr("RECONCILE_ON_PROFILE_FAILURE"); ok {
		c.Reconcile.OnProfileFailure = strings.ToLower(v)
	}
	if v, ok := getEnvInt("RECONCILE_SCAN_PAGE_SIZE"); ok {
		c.Reconcile.ScanPageSize = v
	}
	if v, ok := getEnvInt("RECONCILE_SCAN_MAX_PAGES"); ok {
		c.Reconcile.ScanMaxPages = v
	}
	if v, ok := getEnvBool("RECONCILE_NOTIFY_ON_CREATE"); ok {
		c.Reconcile.NotifyOnCreate = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_KIND"); ok {
		c.Rate.Kind = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Rate.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Rate.Redis.Password = v
	}

	// ADMIN
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Admin.APIKey = v
	}
	if v, ok := getEnvStr("ADMIN_JWT_SECRET"); ok {
		c.Admin.JWTSecret = v
	}

	// SMTP
	if v, ok := getEnvBool("SMTP_ENABLED"); ok {
		c.SMTP.Enabled = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxKey = v
	}

	// METRICS
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
}

// Validate revisa tags de struct y reglas cruzadas entre secciones.
func (c *Config) Validate() error {
	if err := validation.New().Struct(c); err != nil {
		return err
	}
	switch c.Directory.Driver {
	case "postgres":
		if strings.TrimSpace(c.Directory.Postgres.DSN) == "" {
			return errors.New("config: directory.postgres.dsn requerido (DIRECTORY_DSN)")
		}
	case "rest":
		if strings.TrimSpace(c.Directory.REST.URL) == "" || strings.TrimSpace(c.Directory.REST.Key) == "" {
			return errors.New("config: directory.rest.url y directory.rest.key requeridos (SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY)")
		}
	}
	if c.Rate.Enabled && c.Rate.Kind == "redis" && strings.TrimSpace(c.Rate.Redis.Addr) == "" {
		return errors.New("config: rate.redis.addr requerido con rate.kind=redis")
	}
	if err := password.TempPolicy.Check(c.Reconcile.TempPassword); err != nil {
		return fmt.Errorf("config: reconcile.temp_password inválida: %w", err)
	}
	for name, s := range c.Schemas {
		for _, f := range s.Fields {
			if !validation.ValidColumn(f) {
				return fmt.Errorf("config: schemas.%s.fields: columna inválida %q", name, f)
			}
		}
		// el alias tiene que llegar a la fila; si no, perfil e identidad divergen
		for _, a := range s.EmailAliases {
			if len(s.Fields) > 0 && !slices.Contains(s.Fields, a) {
				return fmt.Errorf("config: schemas.%s.email_aliases: %q no está en fields", name, a)
			}
		}
	}
	if c.Reconcile.NotifyOnCreate && !c.SMTP.Enabled {
		return errors.New("config: reconcile.notify_on_create requiere smtp.enabled")
	}
	return nil
}

// Schema devuelve el schema con nombre; ok=false si no existe.
func (c *Config) Schema(name string) (SchemaConfig, bool) {
	s, ok := c.Schemas[name]
	return s, ok
}
