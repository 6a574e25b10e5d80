package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/phrazzld/cronq/internal/domain"
)

// registerJSONCodecs replaces the default json and jsonb codecs so that
// numbers scan as json.Number instead of float64. Payload integers above
// 2^53 would otherwise lose digits on the way out of the database.
func registerJSONCodecs(_ context.Context, conn *pgx.Conn) error {
	tm := conn.TypeMap()
	tm.RegisterType(&pgtype.Type{
		Name:  "json",
		OID:   pgtype.JSONOID,
		Codec: &pgtype.JSONCodec{Marshal: json.Marshal, Unmarshal: domain.DecodeJSON},
	})
	tm.RegisterType(&pgtype.Type{
		Name:  "jsonb",
		OID:   pgtype.JSONBOID,
		Codec: &pgtype.JSONBCodec{Marshal: json.Marshal, Unmarshal: domain.DecodeJSON},
	})
	return nil
}
