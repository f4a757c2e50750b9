package config

// holds server configuration loaded from the environment
type Config struct {
	Environment    string
	Port           string
	DatabaseURL    string
	AllowedOrigins []string
	Backup         BackupConfig
}

// holds S3 backup configuration; all credential fields must be
// present for backups to be enabled
type BackupConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	MaxBackups      int
}

// reports whether enough configuration is present to run backups
func (b BackupConfig) Configured() bool {
	return b.Region != "" && b.AccessKeyID != "" && b.SecretAccessKey != ""
}
