package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN environment variable is required")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get DB: %v", err)
	}

	sql := `
	CREATE TABLE IF NOT EXISTS orders (
	  id CHAR(36) NOT NULL,
	  order_number VARCHAR(32) NOT NULL,
	  kind VARCHAR(16) NOT NULL,
	  customer_email VARCHAR(255) NOT NULL,
	  customer_name VARCHAR(255) NOT NULL,
	  amount DECIMAL(10,2) NOT NULL,
	  currency CHAR(3) NOT NULL DEFAULT 'ZAR',
	  status VARCHAR(16) NOT NULL,
	  payment_status VARCHAR(16) NOT NULL,
	  gateway_name VARCHAR(32) NOT NULL,
	  gateway_checkout_id VARCHAR(128) NULL,
	  gateway_payment_id VARCHAR(128) NULL,
	  form_submission_id CHAR(36) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_orders_order_number (order_number),
	  KEY ix_orders_customer_email (customer_email),
	  KEY ix_orders_payment_status (payment_status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS order_status_history (
	  id CHAR(36) NOT NULL,
	  order_id CHAR(36) NOT NULL,
	  status VARCHAR(16) NOT NULL,
	  payment_status VARCHAR(16) NOT NULL,
	  note VARCHAR(255) NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_order_status_history_order (order_id),
	  CONSTRAINT fk_order_status_history_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS team_players (
	  id CHAR(36) NOT NULL,
	  team_id CHAR(36) NOT NULL,
	  first_name VARCHAR(100) NOT NULL,
	  last_name VARCHAR(100) NOT NULL,
	  parent_email VARCHAR(255) NOT NULL,
	  form_submission_id CHAR(36) NOT NULL,
	  payment_status VARCHAR(32) NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_team_players_team (team_id),
	  KEY ix_team_players_parent_email (parent_email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS team_revenue_entries (
	  id CHAR(36) NOT NULL,
	  team_id CHAR(36) NOT NULL,
	  reference CHAR(36) NOT NULL,
	  description VARCHAR(255) NOT NULL,
	  amount DECIMAL(10,2) NOT NULL,
	  currency CHAR(3) NOT NULL DEFAULT 'ZAR',
	  payment_status VARCHAR(32) NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_team_revenue_team_ref (team_id, reference)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS gateway_notifications (
	  id CHAR(36) NOT NULL,
	  gateway VARCHAR(32) NOT NULL,
	  event_id VARCHAR(128) NOT NULL,
	  event_type VARCHAR(64) NOT NULL,
	  payload_json JSON NOT NULL,
	  received_at DATETIME(3) NOT NULL,
	  processed_at DATETIME(3) NULL,
	  process_error VARCHAR(255) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_gateway_notifications_event (gateway, event_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := sqlDB.Exec(sql); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	log.Println("tables created")
}
