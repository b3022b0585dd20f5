package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/telesight/cdr-intel/internal/cdr"
	"github.com/telesight/cdr-intel/internal/normalize"
	"github.com/telesight/cdr-intel/internal/resolver"
)

// CdrRecord is a stored raw CDR row. The operator payload stays untouched
// in Payload; the *_key columns only exist so queries can hit an index.
type CdrRecord struct {
	ID         string         `db:"id"`
	CallerKey  string         `db:"caller_key"`
	CalleeKey  string         `db:"callee_key"`
	ImeiCaller string         `db:"imei_caller"`
	ImeiCalled string         `db:"imei_called"`
	ImsiCaller string         `db:"imsi_caller"`
	EventAt    *time.Time     `db:"event_at"`
	SourceFile string         `db:"source_file"`
	Payload    types.JSONText `db:"payload"`
	InsertedAt time.Time      `db:"inserted_at"`
}

// CdrRepository reads and writes raw CDR rows. It implements the Source
// contract used by the search, diagram and correlation paths.
type CdrRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewCdrRepository creates a new CDR repository
func NewCdrRepository(db *sqlx.DB, logger *slog.Logger) *CdrRepository {
	return &CdrRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Insert stores one raw CDR row, deriving the indexed key columns from the
// payload so later fetches match regardless of operator field naming.
func (r *CdrRepository) Insert(ctx context.Context, payload resolver.Record, sourceFile string) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	record := CdrRecord{
		ID:         uuid.New().String(),
		CallerKey:  resolver.SubscriberKey(resolver.ResolveString(payload, callerPayloadKeys, 0)),
		CalleeKey:  resolver.SubscriberKey(resolver.ResolveString(payload, calleePayloadKeys, 0)),
		ImeiCaller: resolver.Digits(resolver.ResolveString(payload, imeiCallerPayloadKeys, 0)),
		ImeiCalled: resolver.Digits(resolver.ResolveString(payload, imeiCalledPayloadKeys, 0)),
		ImsiCaller: resolver.Digits(resolver.ResolveString(payload, imsiPayloadKeys, 0)),
		SourceFile: sourceFile,
		Payload:    types.JSONText(encoded),
		InsertedAt: time.Now().UTC(),
	}
	if ts, ok := eventTime(payload); ok {
		record.EventAt = &ts
	}

	query := `
		INSERT INTO cdr_records (
			id, caller_key, callee_key, imei_caller, imei_called,
			imsi_caller, event_at, source_file, payload, inserted_at
		) VALUES (
			:id, :caller_key, :callee_key, :imei_caller, :imei_called,
			:imsi_caller, :event_at, :source_file, :payload, :inserted_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		r.logger.Error("Failed to insert CDR record", "record_id", record.ID, "error", err)
		return fmt.Errorf("failed to insert CDR record: %w", err)
	}
	return nil
}

// Fetch returns the raw payloads matching one identifier, oldest first.
func (r *CdrRepository) Fetch(ctx context.Context, query cdr.Query) ([]resolver.Record, error) {
	where, args, err := r.buildWhere(query)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`
		SELECT payload FROM cdr_records
		WHERE %s
		ORDER BY event_at NULLS LAST, inserted_at`, where)

	var payloads []types.JSONText
	if err := r.db.SelectContext(ctx, &payloads, stmt, args...); err != nil {
		r.logger.Error("Failed to fetch CDR records",
			"identifier", query.Identifier, "type", string(query.IdentifierType), "error", err)
		return nil, fmt.Errorf("failed to fetch CDR records: %w", err)
	}

	records := make([]resolver.Record, 0, len(payloads))
	for _, payload := range payloads {
		var record resolver.Record
		if err := json.Unmarshal(payload, &record); err != nil {
			// A corrupt stored payload is dropped, not fatal.
			r.logger.Warn("Dropping undecodable CDR payload", "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *CdrRepository) buildWhere(query cdr.Query) (string, []interface{}, error) {
	var where string
	args := []interface{}{}

	switch query.IdentifierType {
	case cdr.IdentifierNumber:
		key := resolver.SubscriberKey(query.Identifier)
		if key == "" {
			return "", nil, fmt.Errorf("identifier carries no digits: %q", query.Identifier)
		}
		where = "(caller_key = $1 OR callee_key = $1)"
		args = append(args, key)
	case cdr.IdentifierIMEI:
		where = "(imei_caller = $1 OR imei_called = $1)"
		args = append(args, resolver.Digits(query.Identifier))
	case cdr.IdentifierIMSI:
		where = "imsi_caller = $1"
		args = append(args, resolver.Digits(query.Identifier))
	default:
		return "", nil, fmt.Errorf("unsupported identifier type: %s", query.IdentifierType)
	}

	if !query.DateRange.From.IsZero() {
		args = append(args, query.DateRange.From)
		where += fmt.Sprintf(" AND event_at >= $%d", len(args))
	}
	if !query.DateRange.To.IsZero() {
		args = append(args, query.DateRange.To)
		where += fmt.Sprintf(" AND event_at <= $%d", len(args))
	}
	if query.TimeRange.From != "" && query.TimeRange.To != "" {
		args = append(args, query.TimeRange.From, query.TimeRange.To)
		where += fmt.Sprintf(" AND event_at::time BETWEEN $%d AND $%d", len(args)-1, len(args))
	}

	return where, args, nil
}

// Payload key lists used only for deriving the indexed columns at insert
// time. Reads always go through the resolver on the full payload.
var (
	callerPayloadKeys     = []string{"caller", "appelant", "numero_appelant", "calling_number", "a_number"}
	calleePayloadKeys     = []string{"callee", "appele", "numero_appele", "called_number", "b_number"}
	imeiCallerPayloadKeys = []string{"imeiCaller", "imei_appelant", "imei_caller", "imei"}
	imeiCalledPayloadKeys = []string{"imeiCalled", "imei_appele", "imei_called"}
	imsiPayloadKeys       = []string{"imsiCaller", "imsi_appelant", "imsi_caller", "imsi"}
	datePayloadKeys       = []string{"callDate", "date", "date_appel", "call_date", "jour"}
	timePayloadKeys       = []string{"startTime", "heure_debut", "start_time", "heure", "time"}
)

func eventTime(payload resolver.Record) (time.Time, bool) {
	rawDate := resolver.ResolveString(payload, datePayloadKeys, 0)
	rawTime := resolver.ResolveString(payload, timePayloadKeys, 0)
	return normalize.ParseEventTime(rawDate, rawTime)
}
