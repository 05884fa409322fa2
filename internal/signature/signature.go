// Package signature computes the change-detection digests stored in the
// data_hash column of every warehouse dimension.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Delimiter separates attribute values in the canonical text.
const Delimiter = "|"

// Record maps attribute names to loosely typed values read from staging.
type Record map[string]any

// Spec is a fixed, ordered attribute list for one dimension. Reordering or
// changing Attributes changes every digest, so such edits must bump Version.
type Spec struct {
	Name       string
	Version    int
	Attributes []string
}

var (
	ProductSignature = Spec{
		Name:       "dim_product",
		Version:    2,
		Attributes: []string{"title", "category", "price"},
	}
	StoreSignature = Spec{
		Name:       "dim_store",
		Version:    2,
		Attributes: []string{"store_name", "location", "country"},
	}
	CustomerSignature = Spec{
		Name:       "dim_customer",
		Version:    2,
		Attributes: []string{"full_name", "email", "phone", "country"},
	}
)

// escaper quotes the delimiter and the escape character itself, so values
// that contain "|" cannot shift bytes across attribute boundaries.
var escaper = strings.NewReplacer(`\`, `\\`, Delimiter, `\`+Delimiter)

// Text returns the delimiter-joined canonical text of the tracked attributes.
// Missing attributes contribute an empty string.
func (s Spec) Text(r Record) string {
	parts := make([]string, len(s.Attributes))
	for i, attr := range s.Attributes {
		parts[i] = escaper.Replace(Canonical(r[attr]))
	}
	return strings.Join(parts, Delimiter)
}

// Compute returns the lowercase hex SHA-256 digest of Text(r).
func (s Spec) Compute(r Record) string {
	sum := sha256.Sum256([]byte(s.Text(r)))
	return hex.EncodeToString(sum[:])
}

// String names the attribute list in logs, e.g. "dim_customer/v2".
func (s Spec) String() string {
	return fmt.Sprintf("%s/v%d", s.Name, s.Version)
}

// Canonical renders a value as stable text. Nil values and nil pointers
// render as the empty string.
func Canonical(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case decimal.Decimal:
		return val.String()
	case decimal.NullDecimal:
		if !val.Valid {
			return ""
		}
		return val.Decimal.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return Canonical(rv.Elem().Interface())
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
