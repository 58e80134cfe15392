package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// DisplayRecorder receives one event per campaign display.
type DisplayRecorder interface {
	RecordDisplay(ctx context.Context, ev DisplayEvent) error
}

// DisplayEvent describes a campaign that was shown to the user.
type DisplayEvent struct {
	Timestamp     time.Time      `json:"timestamp"`
	CampaignID    string         `json:"campaign_id"`
	PublicToken   string         `json:"public_token,omitempty"`
	DevTrackingID string         `json:"dev_tracking_id,omitempty"`
	CustomUserID  string         `json:"custom_user_id,omitempty"`
	Signal        string         `json:"signal"` // event name, session_start or manual
	OutputType    string         `json:"output_type"`
	JIT           bool           `json:"jit"`
	DeviceType    string         `json:"device_type,omitempty"`
	Country       string         `json:"country,omitempty"`
	EventData     map[string]any `json:"event_data,omitempty"`
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB *sql.DB
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// InitClickHouse connects to ClickHouse and ensures the campaign_displays
// table exists.
func InitClickHouse(dsn string) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(25)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS campaign_displays (
       timestamp       DateTime,
       campaign_id     String,
       public_token    Nullable(String),
       dev_tracking_id Nullable(String),
       custom_user_id  Nullable(String),
       signal          String,
       output_type     String,
       jit             UInt8,
       device_type     Nullable(String),
       country         Nullable(String),
       event_data      String
   ) ENGINE=MergeTree() ORDER BY (campaign_id, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// displayRow returns the column values of ev in insert order.
func displayRow(ev DisplayEvent) ([]any, error) {
	data := "{}"
	if len(ev.EventData) > 0 {
		b, err := json.Marshal(ev.EventData)
		if err != nil {
			return nil, fmt.Errorf("encode event data: %w", err)
		}
		data = string(b)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var jit uint8
	if ev.JIT {
		jit = 1
	}
	return []any{
		ts.UTC(),
		ev.CampaignID,
		nullString(ev.PublicToken),
		nullString(ev.DevTrackingID),
		nullString(ev.CustomUserID),
		ev.Signal,
		ev.OutputType,
		jit,
		nullString(ev.DeviceType),
		nullString(ev.Country),
		data,
	}, nil
}

// RecordDisplay inserts one row into campaign_displays.
func (a *Analytics) RecordDisplay(ctx context.Context, ev DisplayEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	row, err := displayRow(ev)
	if err != nil {
		return err
	}
	stmt := `INSERT INTO campaign_displays (timestamp, campaign_id, public_token, dev_tracking_id, custom_user_id, signal, output_type, jit, device_type, country, event_data) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, row...); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("campaign_id", ev.CampaignID))
		return fmt.Errorf("insert display event: %w", err)
	}
	return nil
}

// DisplaysByCampaign returns the recorded displays of a campaign, oldest first.
func (a *Analytics) DisplaysByCampaign(ctx context.Context, campaignID string) ([]DisplayEvent, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, campaign_id, public_token, dev_tracking_id, custom_user_id, signal, output_type, jit, device_type, country, event_data FROM campaign_displays WHERE campaign_id=? ORDER BY timestamp`
	rows, err := a.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query displays: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []DisplayEvent
	for rows.Next() {
		var (
			ev                         DisplayEvent
			token, devID, uid, dt, cty sql.NullString
			jit                        uint8
			data                       string
		)
		if err := rows.Scan(&ev.Timestamp, &ev.CampaignID, &token, &devID, &uid, &ev.Signal, &ev.OutputType, &jit, &dt, &cty, &data); err != nil {
			return nil, fmt.Errorf("scan display: %w", err)
		}
		ev.PublicToken, ev.DevTrackingID, ev.CustomUserID = token.String, devID.String, uid.String
		ev.DeviceType, ev.Country = dt.String, cty.String
		ev.JIT = jit == 1
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &ev.EventData); err != nil {
				zap.L().Warn("undecodable display event data", zap.String("campaign_id", ev.CampaignID), zap.Error(err))
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
