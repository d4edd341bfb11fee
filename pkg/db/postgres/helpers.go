package postgres

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// numeric renders a big.Int for a NUMERIC(78,0) parameter. pgx sends the
// string in text format and Postgres coerces it, which keeps values exact at
// any magnitude.
func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// scanNumeric parses a NUMERIC column selected as ::text.
func scanNumeric(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad numeric %q", s)
	}
	return v, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
