package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"resolve-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"resolve"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (run locks)
	RedisAddress        string        `env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	RedisPassword       string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB             int           `env:"REDIS_DB" env-default:"0"`
	RunLockTTL          time.Duration `env:"RUN_LOCK_TTL" env-default:"5m"`
	RunLockRetryTimeout time.Duration `env:"RUN_LOCK_RETRY_TIMEOUT" env-default:"5s"`

	// Kafka Producer (resolution events)
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"resolution-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"true"`

	// Scanning / scoring
	ScanChunkSize      int  `env:"SCAN_CHUNK_SIZE" env-default:"500"`
	ScoreWorkerCount   int  `env:"SCORE_WORKER_COUNT" env-default:"4"`
	AutoMergeEnabled   bool `env:"AUTO_MERGE_ENABLED" env-default:"true"`
	CandidateBatchSize int  `env:"CANDIDATE_BATCH_SIZE" env-default:"100"`

	// Canonical completeness weights
	CompletenessEmailWeight   float64 `env:"COMPLETENESS_EMAIL_WEIGHT" env-default:"0.20"`
	CompletenessPhoneWeight   float64 `env:"COMPLETENESS_PHONE_WEIGHT" env-default:"0.20"`
	CompletenessNameWeight    float64 `env:"COMPLETENESS_NAME_WEIGHT" env-default:"0.20"`
	CompletenessCompanyWeight float64 `env:"COMPLETENESS_COMPANY_WEIGHT" env-default:"0.20"`
	CompletenessAddressWeight float64 `env:"COMPLETENESS_ADDRESS_WEIGHT" env-default:"0.20"`
}
