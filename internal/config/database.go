package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"showcatalog/internal/sqlutil"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "showcatalog-custom"

// DriverName returns the database/sql driver name, defaulting to mysql.
func (d *DatabaseConfig) DriverName() string {
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case "", sqlutil.DriverMySQL:
		return sqlutil.DriverMySQL
	case sqlutil.DriverPostgres, "postgres", "postgresql":
		return sqlutil.DriverPostgres
	case sqlutil.DriverSQLite, "sqlite":
		return sqlutil.DriverSQLite
	default:
		return d.Driver
	}
}

// TableName returns the catalog table, defaulting to shows.
func (d *DatabaseConfig) TableName() string {
	if name := strings.TrimSpace(d.Table); name != "" {
		return name
	}
	return defaultTableName
}

// DSN returns the data source name for the configured driver.
// If ConnectionString is set it is used as the base; otherwise the DSN is
// built from discrete fields.
func (d *DatabaseConfig) DSN() string {
	switch d.DriverName() {
	case sqlutil.DriverPostgres:
		return d.postgresDSN()
	case sqlutil.DriverSQLite:
		return d.sqliteDSN()
	default:
		return d.mysqlDSN()
	}
}

func (d *DatabaseConfig) mysqlDSN() string {
	var dsn string

	if d.ConnectionString != "" {
		dsn = d.ConnectionString
		if !strings.Contains(dsn, "parseTime") {
			if strings.Contains(dsn, "?") {
				dsn += "&parseTime=true"
			} else {
				dsn += "?parseTime=true"
			}
		}
		if !strings.Contains(dsn, "loc=") {
			dsn += "&loc=UTC"
		}
	} else {
		dsn = fmt.Sprintf(
			"%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC",
			d.User,
			d.Password,
			net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			d.Database,
		)
	}

	tlsParam := d.mysqlTLSParam()
	if tlsParam != "" && !strings.Contains(dsn, "tls=") {
		dsn += fmt.Sprintf("&tls=%s", tlsParam)
	}

	return dsn
}

func (d *DatabaseConfig) postgresDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}

	q := url.Values{}
	if mode := d.postgresSSLMode(); mode != "" {
		q.Set("sslmode", mode)
	}
	if caFile := d.TLS.resolveCAFile(); caFile != "" {
		q.Set("sslrootcert", caFile)
	}
	if certFile := d.TLS.resolveCertFile(); certFile != "" {
		q.Set("sslcert", certFile)
	}
	if keyFile := d.TLS.resolveKeyFile(); keyFile != "" {
		q.Set("sslkey", keyFile)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *DatabaseConfig) sqliteDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	path := strings.TrimSpace(d.Path)
	if path == "" {
		path = defaultDatabaseName + ".db"
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
}

// EffectiveDatabaseName returns the database the catalog table lives in.
// For sqlite3 this is the database file path.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	switch d.DriverName() {
	case sqlutil.DriverSQLite:
		if path := strings.TrimSpace(d.Path); path != "" {
			return path, nil
		}
		return defaultDatabaseName + ".db", nil
	case sqlutil.DriverPostgres:
		return resolvePostgresDatabaseName(d.Database, d.ConnectionString)
	default:
		return resolveMySQLDatabaseName(d.Database, d.ConnectionString)
	}
}

func resolveMySQLDatabaseName(databaseName string, connectionString string) (string, error) {
	configDatabase := strings.TrimSpace(databaseName)
	dsnDatabase := ""
	if dsn := strings.TrimSpace(connectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		dsnDatabase = strings.TrimSpace(parsed.DBName)
	}
	return pickDatabaseName(configDatabase, dsnDatabase)
}

func resolvePostgresDatabaseName(databaseName string, connectionString string) (string, error) {
	configDatabase := strings.TrimSpace(databaseName)
	dsnDatabase := ""
	dsn := strings.TrimSpace(connectionString)
	switch {
	case strings.Contains(dsn, "://"):
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		dsnDatabase = strings.TrimPrefix(parsed.Path, "/")
	case dsn != "":
		// keyword/value form: host=... dbname=...
		for _, field := range strings.Fields(dsn) {
			if name, ok := strings.CutPrefix(field, "dbname="); ok {
				dsnDatabase = strings.Trim(name, "'")
			}
		}
	}
	return pickDatabaseName(configDatabase, dsnDatabase)
}

func pickDatabaseName(configDatabase, dsnDatabase string) (string, error) {
	if configDatabase != "" {
		if dsnDatabase != "" && configDatabase != dsnDatabase {
			return "", fmt.Errorf(
				"database mismatch: database.database=%q but database.dsn targets %q",
				configDatabase,
				dsnDatabase,
			)
		}
		return configDatabase, nil
	}
	if dsnDatabase != "" {
		return dsnDatabase, nil
	}
	return "", fmt.Errorf("no effective database name configured: set database.database or include /<database> in database.dsn")
}

// mysqlTLSParam returns the tls DSN parameter, or empty when TLS is not configured.
func (d *DatabaseConfig) mysqlTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

func (d *DatabaseConfig) postgresSSLMode() string {
	switch d.TLS.Mode {
	case "off":
		return "disable"
	case "skip-verify":
		return "require"
	case "verify-ca", "verify-full":
		return d.TLS.Mode
	default:
		return ""
	}
}

// RegisterTLS registers a custom TLS configuration with the MySQL driver.
// Must be called before opening a mysql connection in verify-ca or
// verify-full mode. Other drivers read TLS settings from the DSN.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.DriverName() != sqlutil.DriverMySQL {
		return nil
	}
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}

	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}

	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	caFile := d.TLS.resolveCAFile()
	certFile := d.TLS.resolveCertFile()
	keyFile := d.TLS.resolveKeyFile()

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if certFile != "" || keyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" {
		tlsCfg.ServerName = d.TLS.ServerName
		if tlsCfg.ServerName == "" {
			tlsCfg.ServerName = d.Host
		}
	}

	return tlsCfg, nil
}

func (t *DatabaseTLSConfig) resolveCAFile() string {
	return resolveFileEnv(t.CAFileEnv, t.CAFile)
}

func (t *DatabaseTLSConfig) resolveCertFile() string {
	return resolveFileEnv(t.CertFileEnv, t.CertFile)
}

func (t *DatabaseTLSConfig) resolveKeyFile() string {
	return resolveFileEnv(t.KeyFileEnv, t.KeyFile)
}

// resolveFileEnv prefers the path held in envName when it is set.
func resolveFileEnv(envName, fallback string) string {
	if envName != "" {
		if path := os.Getenv(envName); path != "" {
			return path
		}
	}
	return fallback
}
