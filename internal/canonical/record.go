package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is the fixed-format serialization of a payment's essential fields.
// The same logical inputs always produce byte-identical output, so the digest
// can be recomputed and verified by third parties later.
//
// Format (one field per line, fixed order, fixed number formatting):
//
//	v1
//	payment_request_id:<uuid>
//	worker_id:<uuid>
//	amount_usd:<2 decimal places>
//	crypto_amount:<6 decimal places>
//	crypto_rate:<6 decimal places>
//	application_ids:<sorted uuids joined by ",">
//	destination:<address>
//	timestamp:<RFC3339 UTC>
type Record struct {
	PaymentRequestID   uuid.UUID
	WorkerID           uuid.UUID
	AmountUSD          decimal.Decimal
	CryptoAmount       decimal.Decimal
	CryptoRate         decimal.Decimal
	ApplicationIDs     []uuid.UUID
	DestinationAddress string
	Timestamp          time.Time
}

const version = "v1"

// Build assembles a Record. Application ids are copied and sorted so caller
// ordering cannot change the serialization.
func Build(paymentRequestID, workerID uuid.UUID, amountUSD, cryptoAmount, cryptoRate decimal.Decimal, applicationIDs []uuid.UUID, destination string, ts time.Time) Record {
	ids := make([]uuid.UUID, len(applicationIDs))
	copy(ids, applicationIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return Record{
		PaymentRequestID:   paymentRequestID,
		WorkerID:           workerID,
		AmountUSD:          amountUSD,
		CryptoAmount:       cryptoAmount,
		CryptoRate:         cryptoRate,
		ApplicationIDs:     ids,
		DestinationAddress: destination,
		Timestamp:          ts.UTC(),
	}
}

// Serialize renders the canonical byte form of the record.
func (r Record) Serialize() string {
	ids := make([]string, len(r.ApplicationIDs))
	for i, id := range r.ApplicationIDs {
		ids[i] = id.String()
	}
	var b strings.Builder
	b.WriteString(version)
	b.WriteString("\npayment_request_id:")
	b.WriteString(r.PaymentRequestID.String())
	b.WriteString("\nworker_id:")
	b.WriteString(r.WorkerID.String())
	b.WriteString("\namount_usd:")
	b.WriteString(r.AmountUSD.StringFixed(2))
	b.WriteString("\ncrypto_amount:")
	b.WriteString(r.CryptoAmount.StringFixed(6))
	b.WriteString("\ncrypto_rate:")
	b.WriteString(r.CryptoRate.StringFixed(6))
	b.WriteString("\napplication_ids:")
	b.WriteString(strings.Join(ids, ","))
	b.WriteString("\ndestination:")
	b.WriteString(r.DestinationAddress)
	b.WriteString("\ntimestamp:")
	b.WriteString(r.Timestamp.Format(time.RFC3339))
	return b.String()
}

// Hash returns the lowercase hex SHA-256 digest of the serialized record.
func (r Record) Hash() string {
	sum := sha256.Sum256([]byte(r.Serialize()))
	return hex.EncodeToString(sum[:])
}
