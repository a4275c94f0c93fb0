package dbclient

import (
	"fmt"
	"strings"

	"purify/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for an external SQLite file.
// Host holds the file path; a busy timeout lets it share the file with writers.
func newSQLiteConnector(conn *domain.DatabaseConnection) (*sqlConnector, error) {
	if conn.Host == "" {
		return nil, fmt.Errorf("sqlite connection %q has no file path", conn.Name)
	}
	return newSQLConnector("sqlite", sqliteDSN(conn.Host))
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}
