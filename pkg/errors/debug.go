package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// constraintHints names the marketplace rule behind each constraint so a
// violation in the logs reads as a domain failure instead of a bare index name.
var constraintHints = map[string]string{
	"idx_seller_ledger_entries_reversal_of_id": "ledger entry already reversed",
	"seller_ledger_settlement_consistent":      "ledger settlement flags disagree",
	"ux_processed_webhook_events_event_id":     "webhook event already processed",
	"idx_idempotency_keys_key":                 "idempotency key collision",
	"orders_total_matches":                     "order total disagrees with its components",
	"orders_buyer_present":                     "order has neither buyer nor guest email",
	"idx_carts_user_id":                        "buyer already owns a cart",
	"idx_shipping_options_product_name":        "duplicate shipping option name",
}

// resourceKeys are the detail keys that identify what a failure was about.
var resourceKeys = []string{"order_id", "store_id", "store_ids", "product_id", "status", "trigger", "step"}

// PGDiagnostics carries the server-side fields of a Postgres error.
type PGDiagnostics struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Hint       string `json:"pg_hint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

type ErrorDump struct {
	TopMessage string         `json:"top_message"`
	Code       Code           `json:"code,omitempty"`
	Chain      []string       `json:"chain,omitempty"`
	Resources  map[string]any `json:"resources,omitempty"`
	PG         *PGDiagnostics `json:"pg,omitempty"`
}

// Dump unwraps err for logging.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}

	if te := As(err); te != nil {
		d.Code = te.Code()
		if details, ok := te.Details().(map[string]any); ok {
			for _, key := range resourceKeys {
				if v, ok := details[key]; ok {
					if d.Resources == nil {
						d.Resources = map[string]any{}
					}
					d.Resources[key] = v
				}
			}
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG = pgDiagnostics(err)
	return d
}

// Fields renders the dump as flat log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	for k, v := range d.Resources {
		fields[k] = v
	}
	if d.PG != nil {
		fields["pg_code"] = d.PG.Code
		fields["pg_constraint"] = d.PG.Constraint
		fields["pg_table"] = d.PG.Table
		fields["pg_column"] = d.PG.Column
		fields["pg_detail"] = d.PG.Detail
		fields["pg_message"] = d.PG.Message
		if d.PG.Hint != "" {
			fields["pg_hint"] = d.PG.Hint
		}
	}
	return fields
}

func pgDiagnostics(err error) *PGDiagnostics {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return withHint(&PGDiagnostics{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		})
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return withHint(&PGDiagnostics{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		})
	}
	return nil
}

func withHint(d *PGDiagnostics) *PGDiagnostics {
	d.Hint = constraintHints[d.Constraint]
	return d
}
