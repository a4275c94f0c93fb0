package domain

import "time"

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// Valid reports whether d is a supported driver.
func (d DatabaseDriver) Valid() bool {
	switch d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB, DatabaseDriverSQLite:
		return true
	}
	return false
}

// DatabaseConnection holds the metadata for connecting to an external database.
// The password is stored separately in the SecretStore.
type DatabaseConnection struct {
	ID        string         `json:"id" mapstructure:"id"`
	Name      string         `json:"name" mapstructure:"name"`
	Driver    DatabaseDriver `json:"driver" mapstructure:"driver"`
	Host      string         `json:"host" mapstructure:"host"`         // hostname, URI (mongodb) or file path (sqlite)
	Port      int            `json:"port" mapstructure:"port"`         // 0 for sqlite
	Database  string         `json:"database" mapstructure:"database"` // db name or empty for sqlite
	Username  string         `json:"username" mapstructure:"username"`
	SSLMode   string         `json:"sslMode" mapstructure:"ssl-mode"`
	ExtraJSON string         `json:"extraJson" mapstructure:"extra-json"` // driver-specific options
	CreatedAt time.Time      `json:"createdAt" mapstructure:"-"`
	UpdatedAt time.Time      `json:"updatedAt" mapstructure:"-"`
}

// DatabaseConnectionStore manages CRUD operations for database connections.
type DatabaseConnectionStore interface {
	CreateConnection(c *DatabaseConnection) error
	GetConnection(id string) (*DatabaseConnection, error)
	GetConnectionByName(name string) (*DatabaseConnection, error)
	ListConnections() ([]DatabaseConnection, error)
	UpdateConnection(c *DatabaseConnection) error
	UpsertConnection(c *DatabaseConnection) error
	DeleteConnection(id string) error
}
