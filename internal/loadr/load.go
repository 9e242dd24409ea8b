package loadr

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/vaibhaw-/anomr/internal/anomr/logger"
)

// LoadSummary counts what a generated script inserts.
type LoadSummary struct {
	Users     int
	Customers int
	Products  int
	Orders    int
}

// sqlEscape escapes single quotes for safe inline SQL generation.
func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Load writes the demo database script described by the YAML at configPath.
func Load(configPath string) error {
	cfg, err := ReadLoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	f, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	sum, err := Generate(f, cfg)
	if err != nil {
		return err
	}
	logger.L().Infow("generation complete",
		"output", cfg.Output,
		"users", sum.Users,
		"customers", sum.Customers,
		"products", sum.Products,
		"orders", sum.Orders)
	fmt.Printf("SQL file generated: %s\n", cfg.Output)
	return nil
}

// Generate writes a PostgreSQL script that configures connection and
// pgAudit logging in the format the parser understands, creates the demo
// shop schema and login roles, and inserts fake rows.
func Generate(out io.Writer, cfg LoadConfig) (LoadSummary, error) {
	// deterministic data for a given seed
	f := gofakeit.New(cfg.Seed)
	w := bufio.NewWriter(out)

	fmt.Fprintf(w, "-- Generated SQL for PostgreSQL\n")
	fmt.Fprintf(w, "-- Import with: psql -U postgres -f %s\n\n", cfg.Output)

	writeLogging(w)
	fmt.Fprintf(w, "CREATE DATABASE %s;\n\\connect %s\n\n", cfg.Database, cfg.Database)
	writeDDL(w)
	users := writeDbUsers(w, f, cfg)
	customers := writeCustomers(w, f, cfg.Customers)
	products := writeProducts(w, f, cfg.Products)
	orders := writeOrders(w, f, cfg.Orders, customers, products)

	if err := w.Flush(); err != nil {
		return LoadSummary{}, fmt.Errorf("write script: %w", err)
	}
	return LoadSummary{Users: users, Customers: len(customers), Products: len(products), Orders: orders}, nil
}

// writeLogging makes the server emit the line prefix, connection, session
// and audit records the anomaly pipeline parses.
func writeLogging(w io.Writer) {
	fmt.Fprintln(w, "ALTER SYSTEM SET log_line_prefix = '%m [%p] %q%u@%d ';")
	fmt.Fprintln(w, "ALTER SYSTEM SET log_connections = on;")
	fmt.Fprintln(w, "ALTER SYSTEM SET log_disconnections = on;")
	fmt.Fprintln(w, "ALTER SYSTEM SET shared_preload_libraries = 'pgaudit';")
	fmt.Fprintln(w, "ALTER SYSTEM SET pgaudit.log = 'read, write, ddl, role';")
	fmt.Fprintln(w, "-- restart the server for shared_preload_libraries to take effect")
	fmt.Fprintln(w)
}

func writeDDL(w io.Writer) {
	logger.L().Infow("writing DDL")
	fmt.Fprintln(w, "CREATE EXTENSION IF NOT EXISTS pgaudit;")
	fmt.Fprintln(w, "DROP SCHEMA IF EXISTS shop CASCADE;")
	fmt.Fprintln(w, "CREATE SCHEMA shop;")
	fmt.Fprintln(w, `CREATE TABLE shop.customer (
    customer_id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT UNIQUE,
    created_at TIMESTAMPTZ DEFAULT now()
);`)
	fmt.Fprintln(w, `CREATE TABLE shop.product (
    product_id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    price NUMERIC(10,2) NOT NULL,
    stock_qty INT NOT NULL
);`)
	fmt.Fprintln(w, `CREATE TABLE shop.orders (
    order_id UUID PRIMARY KEY,
    customer_id UUID NOT NULL REFERENCES shop.customer(customer_id),
    product_id UUID NOT NULL REFERENCES shop.product(product_id),
    quantity INT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ DEFAULT now()
);`)
	fmt.Fprintln(w, "CREATE INDEX idx_orders_customer ON shop.orders(customer_id);")
	fmt.Fprintln(w)
}

func writeDbUsers(w io.Writer, f *gofakeit.Faker, cfg LoadConfig) int {
	for i := 1; i <= cfg.DbUsers; i++ {
		name := fmt.Sprintf("appuser%d", i)
		pass := f.Password(true, true, true, false, false, 16)
		fmt.Fprintf(w, "CREATE ROLE %s LOGIN PASSWORD '%s';\n", name, sqlEscape(pass))
		fmt.Fprintf(w, "GRANT USAGE ON SCHEMA shop TO %s;\n", name)
		fmt.Fprintf(w, "GRANT SELECT, INSERT, UPDATE ON ALL TABLES IN SCHEMA shop TO %s;\n", name)
	}
	fmt.Fprintln(w)
	return cfg.DbUsers
}

func writeCustomers(w io.Writer, f *gofakeit.Faker, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("customer-%d-%d", i, f.Uint32()))).String()
		fmt.Fprintf(w, "INSERT INTO shop.customer (customer_id, name, email) VALUES ('%s', '%s', '%s');\n",
			id, sqlEscape(f.Name()), sqlEscape(fmt.Sprintf("%d.%s", i, f.Email())))
		ids = append(ids, id)
	}
	return ids
}

func writeProducts(w io.Writer, f *gofakeit.Faker, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("product-%d-%d", i, f.Uint32()))).String()
		fmt.Fprintf(w, "INSERT INTO shop.product (product_id, name, category, price, stock_qty) VALUES ('%s', '%s', '%s', %.2f, %d);\n",
			id, sqlEscape(f.ProductName()), pick(f, Categories), f.Price(1, 500), f.Number(0, 500))
		ids = append(ids, id)
	}
	return ids
}

func writeOrders(w io.Writer, f *gofakeit.Faker, n int, customers, products []string) int {
	if len(customers) == 0 || len(products) == 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("order-%d-%d", i, f.Uint32()))).String()
		fmt.Fprintf(w, "INSERT INTO shop.orders (order_id, customer_id, product_id, quantity, status) VALUES ('%s', '%s', '%s', %d, '%s');\n",
			id, pick(f, customers), pick(f, products), f.Number(1, 5), pick(f, OrderStatuses))
	}
	return n
}
