package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"autodash-backend/internal/dataset"
)

// Config holds connection details for an external database source.
type Config struct {
	Type     string `json:"type"` // "postgres" or "mysql"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode,omitempty"` // postgres only
}

// DataSource loads tabular data from an external database so a dashboard
// session can start from a DB table instead of a CSV upload.
type DataSource interface {
	Connect(config Config) error
	Close() error
	ListTables() ([]string, error)
	FetchFrame(tableName string, limit int) (*dataset.Frame, error)
}

// Open returns an unconnected data source for the configured driver.
func Open(config Config) (DataSource, error) {
	switch config.Type {
	case "postgres":
		return &PostgresDataSource{}, nil
	case "mysql":
		return &MySQLDataSource{}, nil
	default:
		return nil, fmt.Errorf("unsupported data source type %q", config.Type)
	}
}

// PostgresDataSource implements DataSource for PostgreSQL.
type PostgresDataSource struct {
	db *sql.DB
}

func (p *PostgresDataSource) Connect(config Config) error {
	sslmode := config.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, sslmode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}
	p.db = db
	return nil
}

func (p *PostgresDataSource) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *PostgresDataSource) ListTables() ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name;
	`
	return listTables(p.db, query)
}

func (p *PostgresDataSource) FetchFrame(tableName string, limit int) (*dataset.Frame, error) {
	if err := validateTableName(p, tableName); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, tableName, limit)
	return fetchFrame(p.db, query)
}

// MySQLDataSource implements DataSource for MySQL.
type MySQLDataSource struct {
	db *sql.DB
}

func (m *MySQLDataSource) Connect(config Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		config.User, config.Password, config.Host, config.Port, config.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}
	m.db = db
	return nil
}

func (m *MySQLDataSource) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func (m *MySQLDataSource) ListTables() ([]string, error) {
	return listTables(m.db, "SHOW TABLES")
}

func (m *MySQLDataSource) FetchFrame(tableName string, limit int) (*dataset.Frame, error) {
	if err := validateTableName(m, tableName); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM `%s` LIMIT %d", tableName, limit)
	return fetchFrame(m.db, query)
}

func listTables(db *sql.DB, query string) ([]string, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// validateTableName checks the requested table against the catalog, which
// keeps user-supplied names out of the query text unverified.
func validateTableName(ds DataSource, tableName string) error {
	tables, err := ds.ListTables()
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t == tableName {
			return nil
		}
	}
	return fmt.Errorf("unknown table %q", tableName)
}

// fetchFrame scans an arbitrary result set into a raw string frame. NULLs
// become empty cells, which the cleaning engine treats as missing.
func fetchFrame(db *sql.DB, query string) (*dataset.Frame, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	frame := &dataset.Frame{Headers: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make([]string, len(columns))
		for i, val := range values {
			switch v := val.(type) {
			case nil:
				record[i] = ""
			case []byte:
				record[i] = string(v)
			default:
				record[i] = fmt.Sprintf("%v", v)
			}
		}
		frame.Rows = append(frame.Rows, record)
	}
	return frame, rows.Err()
}
